package reconcile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules configures the validity filter. Every list is matched against
// normalized text, so entries may be written in any case or spacing.
type Rules struct {
	// PlaceholderBodies are bodies that are not real wishes (debug markers,
	// one-word replies left by testers)
	PlaceholderBodies []string `yaml:"placeholder_bodies" json:"placeholderBodies"`
	// TestSenders are sender names used while testing the app
	TestSenders []string `yaml:"test_senders" json:"testSenders"`
	// AttachmentAnnouncements are body prefixes the app writes when a picture
	// is shared; such a message without any attachment is a failed upload
	AttachmentAnnouncements []string `yaml:"attachment_announcements" json:"attachmentAnnouncements"`
	// PreserveRecent exempts messages from live sources younger than this
	// from filtering. Zero disables it.
	PreserveRecent time.Duration `yaml:"preserve_recent" json:"-"`
}

// DefaultRules has no exclusions beyond the app's own picture announcement
func DefaultRules() Rules {
	return Rules{
		AttachmentAnnouncements: []string{"Shared a favorite picture"},
	}
}

// LoadRules reads a YAML rules file
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules. Keys left out of the document keep their
// DefaultRules value.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("invalid rules file: %w", err)
	}
	if rules.PreserveRecent < 0 {
		return Rules{}, fmt.Errorf("preserve_recent must not be negative")
	}
	return rules, nil
}

// compiledRules holds the normalized form of Rules
type compiledRules struct {
	placeholders  map[string]struct{}
	testSenders   map[string]struct{}
	announcements []string
}

func (r Rules) compile() compiledRules {
	c := compiledRules{
		placeholders: make(map[string]struct{}, len(r.PlaceholderBodies)),
		testSenders:  make(map[string]struct{}, len(r.TestSenders)),
	}
	for _, body := range r.PlaceholderBodies {
		if n := Normalize(body); n != "" {
			c.placeholders[n] = struct{}{}
		}
	}
	for _, sender := range r.TestSenders {
		if n := Normalize(sender); n != "" {
			c.testSenders[n] = struct{}{}
		}
	}
	for _, phrase := range r.AttachmentAnnouncements {
		if n := Normalize(phrase); n != "" {
			c.announcements = append(c.announcements, n)
		}
	}
	return c
}
