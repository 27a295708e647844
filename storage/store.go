// Package storage publishes built containers to content-addressed stores.
//
// A container is stored under the CIDv1 (raw, sha2-256) of its file bytes
// (see cidutil.ContainerCID), so any holder of the file can recompute where
// it lives and check what a store returns.
package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
)

// Store is a content-addressed container store.
//
// Contract:
//   - Put is idempotent and returns the CID of the bytes written.
//   - Stored containers are immutable.
//   - Get returns ErrNotFound when the CID is absent and never returns bytes
//     that do not hash to the requested CID.
type Store interface {
	Put(container []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Validator checks container bytes before they are accepted by a store.
type Validator func(container []byte) error

// ValidatingStore rejects uploads that fail Validate. Reads pass through.
type ValidatingStore struct {
	Store
	Validate Validator
}

func (v ValidatingStore) Put(container []byte) (cid.Cid, error) {
	if v.Validate != nil {
		if err := v.Validate(container); err != nil {
			return cid.Undef, fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}
	return v.Store.Put(container)
}
