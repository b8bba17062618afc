package engine

import "strings"

// ClosureDetector recognizes administrative closure commands: the sender
// must be in the administrator identity set and the message body, trimmed
// and lowercased, must exactly match a configured closure phrase. A message
// merely mentioning the phrase does not close a case.
type ClosureDetector struct {
	admins  map[string]struct{}
	phrases []string
}

// NewClosureDetector builds a detector from the configured identity set
// and phrase list.
func NewClosureDetector(adminIdentities, phrases []string) *ClosureDetector {
	admins := make(map[string]struct{}, len(adminIdentities))
	for _, id := range adminIdentities {
		admins[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	normalized := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		if p := normalizePhrase(phrase); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &ClosureDetector{admins: admins, phrases: normalized}
}

// IsAdmin reports whether the identity is in the administrator set.
func (d *ClosureDetector) IsAdmin(identity string) bool {
	_, ok := d.admins[strings.ToLower(strings.TrimSpace(identity))]
	return ok
}

// DetectsClosure reports whether the sender is an administrator issuing a
// closure command.
func (d *ClosureDetector) DetectsClosure(senderIdentity, body string) bool {
	if !d.IsAdmin(senderIdentity) {
		return false
	}
	candidate := normalizePhrase(body)
	for _, phrase := range d.phrases {
		if candidate == phrase {
			return true
		}
	}
	return false
}

// normalizePhrase lowercases, trims and drops a trailing period so
// "I'm closing this case" and "i'm closing this case." compare equal.
func normalizePhrase(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimSuffix(s, ".")
}
