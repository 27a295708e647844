package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"golang.org/x/sync/errgroup"

	"xdao.co/crx/cidutil"
)

// NamedStore pairs a store with the backend name used in reports.
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes every container to all backends and reads from
// them in order. Every backend must return the CID computed from the bytes.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = (*ReplicatingStore)(nil)

// PutAll writes container to every backend concurrently and returns its CID
// together with the CID each successful backend reported. Any backend that
// fails or reports a different CID fails the write; a mismatch is reported
// as ErrCIDMismatch.
func (r ReplicatingStore) PutAll(container []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := cidutil.ContainerCID(container)
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: ReplicatingStore has no backends")
	}
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("storage: nil store for backend %q", b.Name)
		}
	}

	got := make([]cid.Cid, len(r.Backends))
	var g errgroup.Group
	for i, b := range r.Backends {
		g.Go(func() error {
			id, err := b.Store.Put(container)
			if err != nil {
				return fmt.Errorf("storage: backend %q: %w", b.Name, err)
			}
			got[i] = id
			if !id.Equals(want) {
				return fmt.Errorf("storage: backend %q: %w", b.Name, ErrCIDMismatch)
			}
			return nil
		})
	}
	err = g.Wait()

	out := make(map[string]cid.Cid, len(r.Backends))
	for i, b := range r.Backends {
		if got[i].Defined() {
			out[b.Name] = got[i]
		}
	}
	if err != nil {
		return cid.Undef, out, err
	}
	return want, out, nil
}

func (r ReplicatingStore) Put(container []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(container)
	return id, err
}

func (r ReplicatingStore) Get(id cid.Cid) ([]byte, error) {
	stores := make([]Store, 0, len(r.Backends))
	for _, b := range r.Backends {
		stores = append(stores, b.Store)
	}
	return getInOrder(id, stores...)
}

func (r ReplicatingStore) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(id) {
			return true
		}
	}
	return false
}
