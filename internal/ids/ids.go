// Package ids generates the stable identifiers used by every persisted
// entity (documents, chunks, chats, branches, messages).
package ids

import "github.com/google/uuid"

// New returns a new random v4 UUID string, grounded on the teacher's
// `uuid.New().String()` convention used throughout the example pack for
// entity identifiers.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s parses as a UUID, for validating ids received
// from a caller before they reach a store query.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
