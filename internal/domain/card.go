package domain

import (
	"fmt"
	"strings"
)

// Valid flashcard decks, mirrored by the topic tag list below.
var Decks = []string{
	"CLAT GK::Awards / Sports / Defence",
	"CLAT GK::Economy & Business",
	"CLAT GK::Environment & Science",
	"CLAT GK::Government Schemes & Reports",
	"CLAT GK::International Affairs",
	"CLAT GK::Polity & Constitution",
	"CLAT GK::Static GK",
	"CLAT GK::Supreme Court / High Court Judgements",
}

// TopicTags are the category tag values a card may carry.
var TopicTags = []string{
	"Awards_Sports_Defence",
	"Economy_Business",
	"Environment_Science",
	"Government_Schemes_Reports",
	"International_Affairs",
	"Polity_Constitution",
	"Static_GK",
	"Supreme_Court_High_Court",
}

// Card is one generated question/answer pair. Cards are created in batches,
// immutable, and forwarded exactly once to the import sink.
type Card struct {
	Deck  string   `json:"deck"`
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Tags  []string `json:"tags"`
}

// ValidateCard checks a generated card against the import schema and returns
// every problem found rather than stopping at the first.
func ValidateCard(c Card) []error {
	var errs []error

	if c.Front == "" || strings.TrimSpace(c.Front) == "" {
		errs = append(errs, fmt.Errorf("front must be a non-empty string"))
	}
	if c.Back == "" || strings.TrimSpace(c.Back) == "" {
		errs = append(errs, fmt.Errorf("back must be a non-empty string"))
	}

	if !contains(Decks, c.Deck) {
		errs = append(errs, fmt.Errorf("invalid deck %q", c.Deck))
	}

	var hasSource, hasWeek, hasTopic, hasSID bool
	for _, tag := range c.Tags {
		if strings.Contains(tag, " ") {
			errs = append(errs, fmt.Errorf("tag %q contains spaces", tag))
		}
		switch {
		case strings.HasPrefix(tag, "source:"):
			hasSource = true
		case strings.HasPrefix(tag, "week:"):
			hasWeek = true
		case strings.HasPrefix(tag, "topic:"):
			hasTopic = true
			if v := strings.TrimPrefix(tag, "topic:"); !contains(TopicTags, v) {
				errs = append(errs, fmt.Errorf("invalid topic tag value %q", v))
			}
		case strings.HasPrefix(tag, "sid:"):
			hasSID = true
		}
	}
	if !hasSource {
		errs = append(errs, fmt.Errorf("missing 'source:' tag"))
	}
	if !hasWeek {
		errs = append(errs, fmt.Errorf("missing 'week:' tag"))
	}
	if !hasTopic {
		errs = append(errs, fmt.Errorf("missing 'topic:' tag"))
	}
	if !hasSID {
		errs = append(errs, fmt.Errorf("missing 'sid:' tag"))
	}

	return errs
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
