// Package testkit holds shared tests for storage.Store implementations.
package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/crx/cidutil"
	"xdao.co/crx/storage"
)

// NewStore constructs a fresh, empty store for one subtest.
type NewStore func(t *testing.T) storage.Store

// sampleContainer is not a valid container; stores must not care.
var sampleContainer = []byte("Cr24\x03\x00\x00\x00\x00\x00\x00\x00PK\x05\x06")

// RunStoreConformance checks the storage.Store contract against newStore.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Put(sampleContainer)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want, err := cidutil.ContainerCID(sampleContainer)
		if err != nil {
			t.Fatalf("ContainerCID: %v", err)
		}
		if !id.Equals(want) {
			t.Fatalf("Put CID mismatch: got %s want %s", id, want)
		}
		got, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, sampleContainer) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Put(sampleContainer)
		if err != nil {
			t.Fatalf("Put(1): %v", err)
		}
		b, err := s.Put(sampleContainer)
		if err != nil {
			t.Fatalf("Put(2): %v", err)
		}
		if !a.Equals(b) {
			t.Fatalf("Put not idempotent: %s vs %s", a, b)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		s := newStore(t)
		id, err := cidutil.ContainerCID(sampleContainer)
		if err != nil {
			t.Fatalf("ContainerCID: %v", err)
		}
		if s.Has(id) {
			t.Fatalf("Has returned true before Put")
		}
		if _, err := s.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got %v want ErrNotFound", err)
		}
		if _, err := s.Put(sampleContainer); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !s.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		s := newStore(t)
		if s.Has(cid.Undef) {
			t.Fatalf("Has must be false for undefined CID")
		}
		if _, err := s.Get(cid.Undef); err == nil {
			t.Fatalf("Get must fail for undefined CID")
		}
	})
}
