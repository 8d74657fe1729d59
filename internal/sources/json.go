// Package sources loads message collections from the places copies of the
// wall ended up: JSON exports and backups, and HTML page exports.
package sources

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"
)

// envelope is the wrapped form some backups use
type envelope struct {
	Messages []models.Message `json:"messages"`
}

// DecodeJSON reads either a bare array of messages or an object with a
// "messages" array
func DecodeJSON(r io.Reader) ([]models.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []models.Message{}, nil
	}

	switch data[0] {
	case '[':
		var msgs []models.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode message array: %w", err)
		}
		return msgs, nil
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("failed to decode message envelope: %w", err)
		}
		if env.Messages == nil {
			return []models.Message{}, nil
		}
		return env.Messages, nil
	default:
		return nil, fmt.Errorf("expected a JSON array or object, got %q", data[0])
	}
}

// EncodeJSON writes msgs in the persisted format: an indented array,
// never null
func EncodeJSON(w io.Writer, msgs []models.Message) error {
	if msgs == nil {
		msgs = []models.Message{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(msgs)
}

// LoadJSONFile reads a JSON export from disk as a reconciler source
func LoadJSONFile(path string) (reconcile.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return reconcile.Source{}, err
	}
	defer f.Close()

	msgs, err := DecodeJSON(f)
	if err != nil {
		return reconcile.Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return reconcile.Source{Name: path, Messages: msgs}, nil
}

// WriteJSONFile writes msgs to path in the persisted format
func WriteJSONFile(path string, msgs []models.Message) error {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, msgs); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
