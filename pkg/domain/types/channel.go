package types

import "fmt"

// Channel is the medium a conversation took place on
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelEmail Channel = "email"
)

// AllChannels returns all valid channels
func AllChannels() []Channel {
	return []Channel{ChannelVoice, ChannelEmail}
}

// IsValid checks if the channel is valid
func (c Channel) IsValid() bool {
	switch c {
	case ChannelVoice, ChannelEmail:
		return true
	default:
		return false
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel parses a string into a Channel
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid channel: %s", s)
	}
	return c, nil
}
