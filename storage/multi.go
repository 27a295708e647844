package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

// OrderedStore reads from Stores in slice order and writes to the first only.
//
// Callers supply a fixed order; lookups never depend on map iteration.
type OrderedStore struct {
	Stores []Store
}

func (o OrderedStore) Put(container []byte) (cid.Cid, error) {
	if len(o.Stores) == 0 {
		return cid.Undef, errors.New("storage: OrderedStore has no stores")
	}
	return o.Stores[0].Put(container)
}

func (o OrderedStore) Get(id cid.Cid) ([]byte, error) {
	return getInOrder(id, o.Stores...)
}

func (o OrderedStore) Has(id cid.Cid) bool {
	for _, s := range o.Stores {
		if s != nil && s.Has(id) {
			return true
		}
	}
	return false
}

// getInOrder returns the first hit. A non-NotFound error from an earlier
// store stops the lookup.
func getInOrder(id cid.Cid, stores ...Store) ([]byte, error) {
	for _, s := range stores {
		if s == nil {
			continue
		}
		b, err := s.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
