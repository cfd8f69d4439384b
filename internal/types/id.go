// README: Shared identifier and geo point value objects.
package types

import (
	"crypto/rand"
	"encoding/hex"
)

type ID string

func (id ID) String() string { return string(id) }

// NewID returns a random 32-char hex identifier.
func NewID() ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return ID(hex.EncodeToString(b[:]))
}

// IDPtr returns nil for the empty ID.
func IDPtr(v ID) *ID {
	if v == "" {
		return nil
	}
	return &v
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
