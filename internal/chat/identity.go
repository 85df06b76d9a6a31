package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingFields is returned when a claimed identity lacks an id or a name.
	ErrMissingFields = errors.New("identity is missing id or name")
	// ErrDuplicateIdentity is returned when the duplicate policy rejects an id
	// that is already held by another live connection.
	ErrDuplicateIdentity = errors.New("identity id is already connected")
)

// Identity is the user tuple claimed by a client when it connects.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// ValidateIdentity checks a claimed identity. Both id and name must be
// non-blank; the identity is returned exactly as claimed.
func ValidateIdentity(candidate Identity) (Identity, error) {
	if strings.TrimSpace(candidate.ID) == "" || strings.TrimSpace(candidate.Name) == "" {
		return Identity{}, ErrMissingFields
	}
	return candidate, nil
}

// ParseIdentity decodes a JSON identity claim and validates it.
func ParseIdentity(raw []byte) (Identity, error) {
	var candidate Identity
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return Identity{}, fmt.Errorf("decode identity: %w", ErrMissingFields)
	}
	return ValidateIdentity(candidate)
}
