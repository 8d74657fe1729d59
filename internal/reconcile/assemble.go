package reconcile

import (
	"fmt"
	"slices"
	"time"

	"birthday-wall/backend/internal/models"

	"github.com/google/uuid"
)

// Diagnostic kinds
const (
	DiagUnparsableTimestamp = "unparsable_timestamp"
	DiagBadInlineAttachment = "bad_inline_attachment"
)

// Diagnostic is a data-quality problem that was corrected with a default and
// needs an operator to look at it
type Diagnostic struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// identityNamespace seeds synthesized ids so they are stable across runs
var identityNamespace = uuid.MustParse("6f1c3a52-6d7e-4c1b-9a0e-b1d2f3a4c5e6")

// SynthesizeIdentity derives a deterministic id from the message signature
func SynthesizeIdentity(m models.Message) models.Identity {
	return models.Identity("msg_" + uuid.NewSHA1(identityNamespace, []byte(Signature(m))).String())
}

// Assemble orders messages by createdAt, oldest first, keeping input order for
// ties. Messages with an unparsable timestamp sort first and are reported.
// Sequence indexes are assigned 1..N and missing ids are synthesized.
func Assemble(messages []models.Message) ([]models.Message, []Diagnostic) {
	type entry struct {
		msg models.Message
		at  time.Time
	}

	var diags []Diagnostic
	entries := make([]entry, len(messages))
	for i, m := range messages {
		at, err := m.CreatedAt()
		if err != nil {
			at = time.Time{}
			diags = append(diags, Diagnostic{
				Kind:    DiagUnparsableTimestamp,
				Name:    m.Name,
				Value:   m.Timestamp,
				Message: fmt.Sprintf("timestamp treated as oldest: %v", err),
			})
		}
		entries[i] = entry{msg: m, at: at}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		return a.at.Compare(b.at)
	})

	out := make([]models.Message, len(entries))
	for i, e := range entries {
		m := e.msg
		m.Index = i + 1
		if m.ID == "" {
			m.ID = SynthesizeIdentity(m)
		}
		out[i] = m
	}
	return out, diags
}
