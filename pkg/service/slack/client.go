package slack

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// maxSectionBytes is Slack's limit for the text of a section block
const maxSectionBytes = 3000

// client implements Service interface
type client struct {
	api       *slack.Client
	channelID string
}

// Option is a functional option for client configuration
type Option func(*client, *[]slack.Option)

// WithAPIURL points the client at a different Slack API endpoint
func WithAPIURL(url string) Option {
	return func(c *client, opts *[]slack.Option) {
		*opts = append(*opts, slack.OptionAPIURL(url))
	}
}

// New creates a new Slack service posting to channelID with the provided bot token
func New(token, channelID string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channelID == "" {
		return nil, goerr.New("Slack channel ID is required")
	}

	c := &client{channelID: channelID}
	var apiOpts []slack.Option
	for _, opt := range opts {
		opt(c, &apiOpts)
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

func (c *client) Notify(ctx context.Context, n Notification) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, c.channelID,
		slack.MsgOptionBlocks(BuildBlocks(n)...),
		slack.MsgOptionText(fallbackText(n), false),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post Slack message",
			goerr.V("channel_id", c.channelID),
			goerr.V("conversation_id", n.ConversationID),
			goerr.V("action_type", n.ActionType))
	}
	return ts, nil
}

func fallbackText(n Notification) string {
	if n.CustomerName != "" {
		return fmt.Sprintf("%s: %s", n.Title, n.CustomerName)
	}
	return fmt.Sprintf("%s: %s", n.Title, n.CustomerID)
}

// BuildBlocks renders n as Block Kit blocks
func BuildBlocks(n Notification) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, n.Title, false, false)),
	}

	customer := n.CustomerID
	if n.CustomerName != "" {
		customer = fmt.Sprintf("%s (%s)", n.CustomerName, n.CustomerID)
	}
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Customer*\n"+customer, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Action*\n`"+n.ActionType+"`", false, false),
	}
	if n.ConversationID != "" {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, "*Conversation*\n"+n.ConversationID, false, false))
	}
	blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))

	if n.Reason != "" {
		blocks = append(blocks, section("*Reason*\n"+n.Reason))
	}
	if n.Summary != "" {
		blocks = append(blocks, section("*Summary*\n"+n.Summary))
	}

	if len(n.Details) > 0 {
		keys := make([]string, 0, len(n.Details))
		for k := range n.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "• %s: %s\n", k, n.Details[k])
		}
		blocks = append(blocks, section("*Details*\n"+sb.String()))
	}

	if !n.CreatedAt.IsZero() {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, n.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), false, false),
		))
	}
	return blocks
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, truncateToMaxBytes(text, maxSectionBytes), false, false),
		nil, nil,
	)
}

// truncateToMaxBytes cuts s to at most maxBytes without splitting a UTF-8
// sequence, marking the cut with an ellipsis
func truncateToMaxBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const ellipsis = "…"
	limit := maxBytes - len(ellipsis)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ellipsis
}
