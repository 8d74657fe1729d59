package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageDecodesBothIdentityForms(t *testing.T) {
	var msgs []Message
	err := json.Unmarshal([]byte(`[
		{"name":"A","message":"x","id":1714557600000,"messageIndex":1},
		{"name":"B","message":"y","id":"msg_abc"},
		{"name":"C","message":"z","id":null}
	]`), &msgs)
	require.NoError(t, err)

	assert.Equal(t, Identity("1714557600000"), msgs[0].ID)
	assert.Equal(t, 1, msgs[0].Index)
	assert.Equal(t, Identity("msg_abc"), msgs[1].ID)
	assert.Equal(t, Identity(""), msgs[2].ID)
}

func TestIdentityRejectsObjects(t *testing.T) {
	var m Message
	assert.Error(t, json.Unmarshal([]byte(`{"id":{"x":1}}`), &m))
}

func TestMessageEncodesWireNames(t *testing.T) {
	data, err := json.Marshal(Message{Name: "A", Body: "hi", ImageURL: "https://x/a.jpg", HasImage: true, Timestamp: "2024-05-01T09:00:00.000Z", ID: "7", Index: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"A","message":"hi","imageUrl":"https://x/a.jpg","hasImage":true,"timestamp":"2024-05-01T09:00:00.000Z","id":"7","messageIndex":2}`, string(data))
}

func TestAttachment(t *testing.T) {
	assert.Equal(t, AttachmentNone, Message{}.Attachment())
	assert.Equal(t, AttachmentInline, Message{Image: "data:image/png;base64,aGk="}.Attachment())
	assert.Equal(t, AttachmentRemote, Message{Image: "https://x/a.jpg"}.Attachment())
	assert.Equal(t, AttachmentRemote, Message{Image: "data:image/png;base64,aGk=", ImageURL: "https://x/a.jpg"}.Attachment())

	m := Message{Image: "data:", ImageURL: "u", HasImage: true}
	m.DropAttachment()
	assert.False(t, m.HasAttachment())
	assert.False(t, m.HasImage)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-05-01T09:00:00.000Z",
		"2024-05-01T09:00:00Z",
		"2024-05-01T11:00:00+02:00",
		"2024-05-01T09:00:00",
		"2024-05-01 09:00:00",
	} {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("soon")
	assert.Error(t, err)

	assert.Equal(t, "2024-05-01T09:00:00.000Z", FormatTimestamp(want))
}
