package reconcile

import (
	"strconv"
	"strings"

	"birthday-wall/backend/internal/models"
)

// Signature is the duplicate-detection key of a message. Two messages with the
// same signature are the same wish, whatever their timestamp, source or id.
func Signature(m models.Message) string {
	kind := m.Attachment()
	return strings.Join([]string{
		Normalize(m.Name),
		Normalize(m.Body),
		strconv.FormatBool(kind != models.AttachmentNone),
		string(kind),
	}, "|")
}

// contentKey ignores the attachment kind; inline and remote copies of the
// same picture message share it.
func contentKey(m models.Message) string {
	return Normalize(m.Name) + "|" + Normalize(m.Body)
}
