package sources

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONShapes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"array", `[{"name":"Ann","message":"hi","id":1718000000000}]`, 1},
		{"envelope", `{"messages":[{"name":"Ann","message":"hi"},{"name":"Bo","message":"yo"}]}`, 2},
		{"empty envelope", `{}`, 0},
		{"empty input", "  ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := DecodeJSON(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.NotNil(t, msgs)
			assert.Len(t, msgs, tt.want)
		})
	}

	_, err := DecodeJSON(strings.NewReader(`"nope"`))
	assert.Error(t, err)
}

func TestDecodeJSONNumericID(t *testing.T) {
	msgs, err := DecodeJSON(strings.NewReader(`[{"name":"Ann","message":"hi","id":1718000000000}]`))
	require.NoError(t, err)
	assert.Equal(t, models.Identity("1718000000000"), msgs[0].ID)
}

func TestEncodeJSONPersistedFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, EncodeJSON(&buf, []models.Message{{Name: "A&B", Body: "<3"}}))
	assert.Equal(t, "[\n  {\n    \"name\": \"A&B\",\n    \"message\": \"<3\"\n  }\n]\n", buf.String())
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.json")
	in := []models.Message{{Name: "Ann", Body: "hi", Timestamp: "2024-06-10T10:00:00.000Z", ID: "a"}}
	require.NoError(t, WriteJSONFile(path, in))

	src, err := LoadJSONFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Name)
	if diff := cmp.Diff(in, src.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

const exportPage = `<!DOCTYPE html>
<html><body>
<div class="wall">
  <div class="birthday-message">
    <div class="message-author">From: Chris &amp; Pat 💕</div>
    <div class="message-content">Happy birthday!<br>Love you</div>
    <img src="https://cdn.example.com/p.jpg" alt="Shared memory">
    <div class="message-time">6/14/2024</div>
  </div>
  <div class="birthday-message">
    <div class="message-author">From: Dana 💕</div>
    <div class="message-content">  Shared a favorite picture!  </div>
    <div class="message-time">sometime</div>
  </div>
  <div class="birthday-message">
    <div class="message-content">no author here</div>
  </div>
</div>
</body></html>`

func TestParseHTML(t *testing.T) {
	msgs, err := ParseHTML(strings.NewReader(exportPage))
	require.NoError(t, err)

	want := []models.Message{
		{
			Name:      "Chris & Pat",
			Body:      "Happy birthday!\nLove you",
			ImageURL:  "https://cdn.example.com/p.jpg",
			HasImage:  true,
			Timestamp: "2024-06-14T00:00:00.000Z",
		},
		{
			Name:      "Dana",
			Body:      "Shared a favorite picture!",
			Timestamp: "sometime",
		},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("ParseHTML mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHTMLDateOnlyTimes(t *testing.T) {
	page := `<div class="birthday-message"><div class="message-author">From: Ann 💕</div>` +
		`<div class="message-content">Later wish</div><div class="message-time">6/14/2024</div></div>` +
		`<div class="birthday-message"><div class="message-author">From: Bob 💕</div>` +
		`<div class="message-content">Earlier wish</div><div class="message-time">06/10/2024</div></div>` +
		`<div class="birthday-message"><div class="message-author">From: Cy 💕</div>` +
		`<div class="message-content">With time</div><div class="message-time">6/12/2024, 3:04:05 PM</div></div>`

	msgs, err := ParseHTML(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "2024-06-14T00:00:00.000Z", msgs[0].Timestamp)
	assert.Equal(t, "2024-06-10T00:00:00.000Z", msgs[1].Timestamp)
	assert.Equal(t, "2024-06-12T15:04:05.000Z", msgs[2].Timestamp)

	ordered, diags := reconcile.Assemble(msgs)
	assert.Empty(t, diags)
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"Bob", "Cy", "Ann"}, []string{ordered[0].Name, ordered[1].Name, ordered[2].Name})
}

func TestParseHTMLInlineImage(t *testing.T) {
	page := `<div class="birthday-message"><div class="message-author">From: Eve 💕</div>` +
		`<div class="message-content">pic</div><img src="data:image/png;base64,AAAA"></div>`

	msgs, err := ParseHTML(strings.NewReader(page))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.AttachmentInline, msgs[0].Attachment())
}

func TestLoadHTMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.html")
	require.NoError(t, os.WriteFile(path, []byte(exportPage), 0o600))

	src, err := LoadHTMLFile(path)
	require.NoError(t, err)
	assert.Len(t, src.Messages, 2)

	_, err = LoadHTMLFile(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
