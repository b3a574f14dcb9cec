package types

import "fmt"

// Sentiment is the overall tone of a conversation
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// AllSentiments returns all valid sentiments
func AllSentiments() []Sentiment {
	return []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative}
}

// IsValid checks if the sentiment is valid
func (s Sentiment) IsValid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	default:
		return false
	}
}

func (s Sentiment) String() string {
	return string(s)
}

// ParseSentiment parses a string into a Sentiment
func ParseSentiment(s string) (Sentiment, error) {
	v := Sentiment(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid sentiment: %s", s)
	}
	return v, nil
}

// InterestLevel is the customer's buying interest inferred from a conversation
type InterestLevel string

const (
	InterestLevelHigh   InterestLevel = "high"
	InterestLevelMedium InterestLevel = "medium"
	InterestLevelLow    InterestLevel = "low"
)

// AllInterestLevels returns all valid interest levels
func AllInterestLevels() []InterestLevel {
	return []InterestLevel{InterestLevelHigh, InterestLevelMedium, InterestLevelLow}
}

// IsValid checks if the interest level is valid
func (l InterestLevel) IsValid() bool {
	switch l {
	case InterestLevelHigh, InterestLevelMedium, InterestLevelLow:
		return true
	default:
		return false
	}
}

func (l InterestLevel) String() string {
	return string(l)
}

// ParseInterestLevel parses a string into an InterestLevel
func ParseInterestLevel(s string) (InterestLevel, error) {
	v := InterestLevel(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid interest level: %s", s)
	}
	return v, nil
}
