package reconcile

import (
	"testing"

	"birthday-wall/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	rules := Rules{
		PlaceholderBodies:       []string{"TEST MESSAGE", "ok"},
		TestSenders:             []string{"Test User", "debug"},
		AttachmentAnnouncements: []string{"Shared a favorite picture"},
	}

	tests := []struct {
		name   string
		msg    models.Message
		reason string
	}{
		{"kept", models.Message{Name: "Chris", Body: "Happy Birthday!"}, ""},
		{"empty sender", models.Message{Name: "  ", Body: "Hi"}, ReasonEmptySender},
		{"entity-only sender", models.Message{Name: "&nbsp;", Body: "Hi"}, ReasonEmptySender},
		{"empty body", models.Message{Name: "Chris", Body: ""}, ReasonEmptyBody},
		{"placeholder any case", models.Message{Name: "Chris", Body: "  test   Message "}, ReasonPlaceholderBody},
		{"placeholder must match exactly", models.Message{Name: "Chris", Body: "ok then, happy birthday"}, ""},
		{"test sender", models.Message{Name: "TEST user", Body: "Happy Birthday!"}, ReasonTestSender},
		{"announcement without attachment", models.Message{Name: "Jo", Body: "Shared a favorite picture!"}, ReasonMissingAttachment},
		{"announcement with emoji", models.Message{Name: "Jo", Body: "Shared a favorite picture! 📸💕"}, ReasonMissingAttachment},
		{"announcement with flag only", models.Message{Name: "Jo", Body: "Shared a favorite picture!", HasImage: true}, ReasonMissingAttachment},
		{"announcement with remote image", models.Message{Name: "Jo", Body: "Shared a favorite picture!", ImageURL: "https://x/a.jpg"}, ""},
		{"announcement with inline image", models.Message{Name: "Jo", Body: "Shared a favorite picture!", Image: inlinePic}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, Rejection(tt.msg, rules))
		})
	}
}

func TestFilterKeepsOrderAndReports(t *testing.T) {
	msgs := []models.Message{
		{Name: "A", Body: "one"},
		{Name: "B", Body: "test message"},
		{Name: "C", Body: "three"},
		{Name: "", Body: "four"},
	}

	kept, rejected := Filter(msgs, Rules{PlaceholderBodies: []string{"Test Message"}})

	require.Len(t, kept, 2)
	assert.Equal(t, "A", kept[0].Name)
	assert.Equal(t, "C", kept[1].Name)
	require.Len(t, rejected, 2)
	assert.Equal(t, ReasonPlaceholderBody, rejected[0].Reason)
	assert.Equal(t, ReasonEmptySender, rejected[1].Reason)
}

func TestFilterDefaultRulesHaveNoExclusions(t *testing.T) {
	msgs := []models.Message{
		{Name: "test", Body: "test"},
		{Name: "Haley", Body: "Shared a favorite picture!"},
	}

	kept, rejected := Filter(msgs, DefaultRules())

	require.Len(t, kept, 1)
	assert.Equal(t, "test", kept[0].Name)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonMissingAttachment, rejected[0].Reason)
}

func TestFilterExclusionProperty(t *testing.T) {
	exclusions := []string{"lol", "testing 123", "asdf"}
	var msgs []models.Message
	for _, body := range []string{"LOL", " Testing   123", "asdf ", "happy bday", "lol you're old"} {
		msgs = append(msgs, models.Message{Name: "X", Body: body})
	}

	kept, _ := Filter(msgs, Rules{PlaceholderBodies: exclusions})

	for _, m := range kept {
		assert.NotContains(t, exclusions, Normalize(m.Body))
	}
	assert.Len(t, kept, 2)
}
