package testkit

import (
	"testing"

	"xdao.co/crx/storage"
)

func TestMemStoreConformance(t *testing.T) {
	RunStoreConformance(t, func(t *testing.T) storage.Store {
		return NewMemStore()
	})
}
