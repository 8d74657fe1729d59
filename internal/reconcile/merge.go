package reconcile

import (
	"birthday-wall/backend/internal/models"
)

// Merge resolutions recorded on a Duplicate
const (
	ReasonRemoteAttachment = "remote_attachment"
	ReasonHasIdentity      = "has_identity"
	ReasonFirstSeen        = "first_seen"
)

// Set is an insertion-ordered map from signature to message
type Set struct {
	order []string
	items map[string]models.Message
}

func newSet() *Set {
	return &Set{items: make(map[string]models.Message)}
}

// Len returns the number of distinct signatures
func (s *Set) Len() int {
	return len(s.order)
}

// Get returns the message stored under a signature
func (s *Set) Get(signature string) (models.Message, bool) {
	m, ok := s.items[signature]
	return m, ok
}

// Signatures returns the keys in first-seen order
func (s *Set) Signatures() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Messages returns the stored messages in first-seen order
func (s *Set) Messages() []models.Message {
	out := make([]models.Message, 0, len(s.order))
	for _, sig := range s.order {
		out = append(out, s.items[sig])
	}
	return out
}

func (s *Set) put(signature string, m models.Message) {
	if _, ok := s.items[signature]; !ok {
		s.order = append(s.order, signature)
	}
	s.items[signature] = m
}

func (s *Set) remove(signature string) {
	if _, ok := s.items[signature]; !ok {
		return
	}
	delete(s.items, signature)
	for i, sig := range s.order {
		if sig == signature {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

// Duplicate records a message the merge discarded in favour of another
type Duplicate struct {
	Signature string         `json:"signature"`
	Kept      models.Message `json:"kept"`
	Dropped   models.Message `json:"dropped"`
	Reason    string         `json:"reason"`
}

// Merge combines source lists, most trusted first, into one Set keyed by
// signature. On a collision the remote attachment beats the inline one, then a
// message with an id beats one without, otherwise the first seen stays.
// Inputs are not modified.
func Merge(sources ...[]models.Message) *Set {
	set, _ := mergeSources(sources)
	return set
}

func mergeSources(sources [][]models.Message) (*Set, []Duplicate) {
	set := newSet()
	var dups []Duplicate

	for _, source := range sources {
		for _, candidate := range source {
			sig := Signature(candidate)
			current, seen := set.Get(sig)
			if !seen {
				set.put(sig, candidate)
				continue
			}

			replace, reason := prefer(current, candidate)
			if replace {
				set.put(sig, candidate)
				dups = append(dups, Duplicate{Signature: sig, Kept: candidate, Dropped: current, Reason: reason})
			} else {
				dups = append(dups, Duplicate{Signature: sig, Kept: current, Dropped: candidate, Reason: reason})
			}
		}
	}

	// Inline and remote copies of one picture message have different
	// signatures; keep only the remote one.
	remotes := make(map[string]string)
	for _, sig := range set.order {
		m := set.items[sig]
		if m.Attachment() == models.AttachmentRemote {
			if _, ok := remotes[contentKey(m)]; !ok {
				remotes[contentKey(m)] = sig
			}
		}
	}
	for _, sig := range set.Signatures() {
		m := set.items[sig]
		if m.Attachment() != models.AttachmentInline {
			continue
		}
		remoteSig, ok := remotes[contentKey(m)]
		if !ok {
			continue
		}
		set.remove(sig)
		dups = append(dups, Duplicate{Signature: remoteSig, Kept: set.items[remoteSig], Dropped: m, Reason: ReasonRemoteAttachment})
	}

	return set, dups
}

// prefer reports whether candidate should replace current
func prefer(current, candidate models.Message) (bool, string) {
	currentKind, candidateKind := current.Attachment(), candidate.Attachment()
	if candidateKind == models.AttachmentRemote && currentKind == models.AttachmentInline {
		return true, ReasonRemoteAttachment
	}
	if currentKind == models.AttachmentRemote && candidateKind == models.AttachmentInline {
		return false, ReasonRemoteAttachment
	}
	if current.ID == "" && candidate.ID != "" {
		return true, ReasonHasIdentity
	}
	if current.ID != "" && candidate.ID == "" {
		return false, ReasonHasIdentity
	}
	return false, ReasonFirstSeen
}
