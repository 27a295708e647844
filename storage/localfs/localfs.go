// Package localfs stores published containers in a local directory.
package localfs

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/crx/cidutil"
	"xdao.co/crx/storage"
)

const fileExt = ".crx"

// Store keeps each container at <root>/<first two CID chars>/<cid>.crx.
//
// Files are created read-only and never rewritten. The store works offline
// and does not depend on wall-clock time.
type Store struct {
	root string
}

var _ storage.Store = (*Store)(nil)

// New returns a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Put(container []byte) (cid.Cid, error) {
	id, err := cidutil.ContainerCID(container)
	if err != nil {
		return cid.Undef, err
	}

	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if !os.IsExist(err) {
			return cid.Undef, err
		}
		// Already published: only identical bytes may claim the slot.
		existing, rerr := s.Get(id)
		if rerr != nil || string(existing) != string(container) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	}

	if _, err := f.Write(container); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return cid.Undef, err
	}
	return id, nil
}

func (s *Store) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(s.pathFor(id))
	return err == nil
}

// List returns the CIDs of all stored containers, sorted by string form.
func (s *Store) List() ([]cid.Cid, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}
		names = append(names, strings.TrimSuffix(d.Name(), fileExt))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]cid.Cid, 0, len(names))
	for _, n := range names {
		id, err := cidutil.Parse(n)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *Store) pathFor(id cid.Cid) string {
	name := id.String()
	return filepath.Join(s.root, name[:2], name+fileExt)
}
