// Package cidutil derives content identifiers for container files.
//
// Published containers are addressed by a CIDv1 with the "raw" codec and a
// sha2-256 multihash, so the identifier can be recomputed from the file alone.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ContainerCID returns the CIDv1 (raw, sha2-256) of b.
func ContainerCID(b []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Matches reports whether b hashes to id.
func Matches(id cid.Cid, b []byte) bool {
	if !id.Defined() {
		return false
	}
	got, err := ContainerCID(b)
	if err != nil {
		return false
	}
	return got.Equals(id)
}

// Parse decodes s and rejects anything that is not a CIDv1 raw sha2-256 id.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if !IsContainerCID(id) {
		return cid.Undef, errNotContainerCID
	}
	return id, nil
}

// IsContainerCID reports whether id uses the codec and hash of ContainerCID.
func IsContainerCID(id cid.Cid) bool {
	if !id.Defined() || id.Version() != 1 || id.Type() != cid.Raw {
		return false
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return false
	}
	return dec.Code == multihash.SHA2_256 && dec.Length == 32
}
