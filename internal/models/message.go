package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AttachmentKind classifies how a message carries its picture
type AttachmentKind string

const (
	AttachmentNone   AttachmentKind = "none"
	AttachmentInline AttachmentKind = "inline"
	AttachmentRemote AttachmentKind = "remote"
)

// Identity is a message id. Older copies of the collection stored numeric
// ids (epoch milliseconds), newer ones store strings; both decode here.
type Identity string

// UnmarshalJSON accepts a JSON string, number or null
func (id *Identity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = Identity(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identity must be a string or number: %w", err)
	}
	*id = Identity(n.String())
	return nil
}

// Message is one birthday wish as persisted in the canonical collection
type Message struct {
	Name              string   `json:"name"`
	Body              string   `json:"message"`
	Image             string   `json:"image,omitempty"`
	ImageURL          string   `json:"imageUrl,omitempty"`
	HasImage          bool     `json:"hasImage,omitempty"`
	Timestamp         string   `json:"timestamp,omitempty"`
	OriginalTimestamp string   `json:"originalTimestamp,omitempty"`
	ID                Identity `json:"id,omitempty"`
	Index             int      `json:"messageIndex,omitempty"`
}

// Attachment reports the attachment kind of the message
func (m Message) Attachment() AttachmentKind {
	if m.ImageURL != "" {
		return AttachmentRemote
	}
	if m.Image == "" {
		return AttachmentNone
	}
	if strings.HasPrefix(m.Image, "http://") || strings.HasPrefix(m.Image, "https://") {
		return AttachmentRemote
	}
	return AttachmentInline
}

// HasAttachment is true for inline and remote attachments
func (m Message) HasAttachment() bool {
	return m.Attachment() != AttachmentNone
}

// AttachmentRef returns the URL or data URL that carries the picture
func (m Message) AttachmentRef() string {
	if m.ImageURL != "" {
		return m.ImageURL
	}
	return m.Image
}

// DropAttachment clears every attachment field
func (m *Message) DropAttachment() {
	m.Image = ""
	m.ImageURL = ""
	m.HasImage = false
}

// timestampLayouts are tried in order when parsing createdAt
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// CreatedAt parses the message timestamp
func (m Message) CreatedAt() (time.Time, error) {
	return ParseTimestamp(m.Timestamp)
}

// ParseTimestamp parses the timestamp formats found in exported collections
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// FormatTimestamp renders a time the way the collection stores it
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
