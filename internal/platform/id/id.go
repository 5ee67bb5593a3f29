package id

import (
	"strings"

	"github.com/google/uuid"
)

// Generator creates opaque identifiers.
type Generator interface {
	New() string
}

// UUID yields upper-case RFC 4122 identifiers, the form used for export
// file names.
type UUID struct{}

func (UUID) New() string {
	return strings.ToUpper(uuid.NewString())
}
