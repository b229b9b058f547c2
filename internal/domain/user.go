package domain

import (
	"bytes"

	"github.com/google/uuid"
)

// CanonicalPair orders two user ids so that (a, b) and (b, a) map to the same
// stored pair. The smaller id always comes first.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}
