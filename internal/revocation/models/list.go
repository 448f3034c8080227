package models

import (
	"strings"

	dErrors "rlregistry/pkg/domain-errors"
)

// MaxListIDLength bounds caller-chosen list identifiers.
const MaxListIDLength = 255

// ListID identifies a revocation list. It is chosen by the caller at registration.
type ListID string

// ParseListID validates a caller-supplied identifier. Blank ids are rejected; the id
// is otherwise kept verbatim.
func ParseListID(raw string) (ListID, error) {
	if strings.TrimSpace(raw) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "revocation list id is required")
	}
	if len(raw) > MaxListIDLength {
		return "", dErrors.Newf(dErrors.CodeValidation,
			"revocation list id must be %d characters or less", MaxListIDLength)
	}
	return ListID(raw), nil
}

func (id ListID) String() string {
	return string(id)
}

// List is a read-only view of a revocation list at one point in time.
type List struct {
	ID     ListID
	Bitmap *Bitmap
}
