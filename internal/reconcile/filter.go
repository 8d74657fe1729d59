package reconcile

import (
	"strings"

	"birthday-wall/backend/internal/models"
)

// Reasons a message is removed by the filter
const (
	ReasonEmptySender       = "empty_sender"
	ReasonEmptyBody         = "empty_body"
	ReasonPlaceholderBody   = "placeholder_body"
	ReasonTestSender        = "test_sender"
	ReasonMissingAttachment = "announced_attachment_missing"
)

// Rejected is a message removed by the filter
type Rejected struct {
	Message models.Message `json:"message"`
	Reason  string         `json:"reason"`
}

// Filter keeps the messages that pass every rule and reports the rest
func Filter(messages []models.Message, rules Rules) ([]models.Message, []Rejected) {
	compiled := rules.compile()

	kept := make([]models.Message, 0, len(messages))
	var rejected []Rejected
	for _, m := range messages {
		if reason := compiled.reject(m); reason != "" {
			rejected = append(rejected, Rejected{Message: m, Reason: reason})
			continue
		}
		kept = append(kept, m)
	}
	return kept, rejected
}

// Rejection returns why the rules remove m, or "" when it is kept
func Rejection(m models.Message, rules Rules) string {
	return rules.compile().reject(m)
}

func (c compiledRules) reject(m models.Message) string {
	sender := Normalize(m.Name)
	body := Normalize(m.Body)

	switch {
	case sender == "":
		return ReasonEmptySender
	case body == "":
		return ReasonEmptyBody
	}
	if _, ok := c.placeholders[body]; ok {
		return ReasonPlaceholderBody
	}
	if _, ok := c.testSenders[sender]; ok {
		return ReasonTestSender
	}
	if !m.HasAttachment() {
		for _, phrase := range c.announcements {
			if strings.HasPrefix(body, phrase) {
				return ReasonMissingAttachment
			}
		}
	}
	return ""
}
