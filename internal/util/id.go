package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a prefixed random identifier, e.g. "pln_4f1c...".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
