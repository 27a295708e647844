package crx

import (
	"crypto/sha256"
	"fmt"
)

// IDSize is the length of a container id in bytes.
const IDSize = 16

// ID identifies a container. It depends only on the signing public key.
type ID [IDSize]byte

// DeriveID returns the first 16 bytes of SHA-256 over publicKeyDER.
func DeriveID(publicKeyDER []byte) ID {
	sum := sha256.Sum256(publicKeyDER)
	var id ID
	copy(id[:], sum[:IDSize])
	return id
}

// String renders id as the 32-letter extension id, one letter a..p per nibble.
func (id ID) String() string {
	out := make([]byte, 0, IDSize*2)
	for _, b := range id {
		out = append(out, 'a'+(b>>4), 'a'+(b&0x0f))
	}
	return string(out)
}

// ParseID is the inverse of ID.String.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != IDSize*2 {
		return id, fmt.Errorf("crx: id must be %d letters, got %d", IDSize*2, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 'a' || c > 'p' {
			return ID{}, fmt.Errorf("crx: invalid id letter %q", c)
		}
		if i%2 == 0 {
			id[i/2] = (c - 'a') << 4
		} else {
			id[i/2] |= c - 'a'
		}
	}
	return id, nil
}
