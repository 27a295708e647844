// Package casconfig describes where built containers are published.
//
// A config names one or more registry backends and the publish policy that
// applies to them:
//
//	{
//	  "write_policy": "all",
//	  "verify": true,
//	  "max_container_bytes": 104857600,
//	  "backends": [
//	    {"name": "localfs", "config": {"localfs-dir": "/var/lib/crx"}},
//	    {"name": "grpc", "id": "mirror", "verify": false,
//	     "config": {"grpc-target": "mirror:7777"}}
//	  ]
//	}
//
// Backend config keys are the backend's flag names (see casregistry.Option).
// Binaries still link backends with blank imports.
package casconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"

	"xdao.co/crx/crx"
	"xdao.co/crx/storage"
	"xdao.co/crx/storage/casregistry"
)

// WritePolicy selects which backends receive a published container.
type WritePolicy string

const (
	// WriteFirst writes to the first backend only; reads fall back in order.
	WriteFirst WritePolicy = "first"
	// WriteAll writes to every backend and requires them to agree on the CID.
	WriteAll WritePolicy = "all"
)

type Config struct {
	WritePolicy WritePolicy `json:"write_policy,omitempty"`
	// Verify makes every backend refuse containers whose signatures do not
	// verify. A backend's own "verify" overrides it.
	Verify bool `json:"verify,omitempty"`
	// MaxContainerBytes refuses larger containers before any backend is
	// contacted. Zero means no limit.
	MaxContainerBytes int64           `json:"max_container_bytes,omitempty"`
	Backends          []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend to open (e.g. "grpc", "localfs").
	Name string `json:"name"`
	// ID names the backend in receipts. If empty, Name is used.
	ID     string              `json:"id,omitempty"`
	Verify *bool               `json:"verify,omitempty"`
	Config casregistry.Options `json:"config,omitempty"`
}

func (b BackendConfig) key() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// LoadFile reads and validates a config. Unknown fields are errors so that
// a misspelled policy never silently publishes unverified containers.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	if c.MaxContainerBytes < 0 {
		return fmt.Errorf("casconfig: negative max_container_bytes %d", c.MaxContainerBytes)
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, ok := seen[b.key()]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.key())
		}
		seen[b.key()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Target is an opened config, ready to publish.
type Target struct {
	Policy   WritePolicy
	Backends []storage.NamedStore

	maxBytes int64
	closers  []func() error
}

// Receipt records where a container was published.
type Receipt struct {
	CID cid.Cid
	// Backends maps each backend that accepted the write to the CID it
	// reported.
	Backends map[string]cid.Cid
}

// Open opens every backend of the config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus the one written under WriteFirst).
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (*Target, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferredBackend)
		}
		b := ordered[idx]
		copy(ordered[1:idx+1], ordered[0:idx])
		ordered[0] = b
	}

	t := &Target{Policy: c.WritePolicy, maxBytes: c.MaxContainerBytes}
	if t.Policy == "" {
		t.Policy = WriteFirst
	}
	for _, b := range ordered {
		st, closeFn, err := casregistry.OpenStrict(b.Name, usage, b.Config)
		if err != nil {
			_ = t.Close()
			return nil, fmt.Errorf("casconfig: backend %q: %w", b.key(), err)
		}
		if closeFn != nil {
			t.closers = append(t.closers, closeFn)
		}
		verify := c.Verify
		if b.Verify != nil {
			verify = *b.Verify
		}
		if verify {
			st = storage.ValidatingStore{Store: st, Validate: crx.Validate}
		}
		t.Backends = append(t.Backends, storage.NamedStore{Name: b.key(), Store: st})
	}
	return t, nil
}

// Store composes the backends per the write policy.
func (t *Target) Store() storage.Store {
	if t.Policy == WriteAll {
		return storage.ReplicatingStore{Backends: t.Backends}
	}
	stores := make([]storage.Store, 0, len(t.Backends))
	for _, n := range t.Backends {
		stores = append(stores, n.Store)
	}
	return storage.OrderedStore{Stores: stores}
}

// Publish writes container per the write policy and reports which backends
// hold it.
func (t *Target) Publish(container []byte) (Receipt, error) {
	if t.maxBytes > 0 && int64(len(container)) > t.maxBytes {
		return Receipt{}, fmt.Errorf("%w: container is %d bytes, limit is %d", storage.ErrRejected, len(container), t.maxBytes)
	}
	if len(t.Backends) == 0 {
		return Receipt{}, errors.New("casconfig: no backends open")
	}

	if t.Policy == WriteAll {
		id, per, err := storage.ReplicatingStore{Backends: t.Backends}.PutAll(container)
		return Receipt{CID: id, Backends: per}, err
	}
	first := t.Backends[0]
	id, err := first.Store.Put(container)
	if err != nil {
		return Receipt{}, fmt.Errorf("casconfig: backend %q: %w", first.Name, err)
	}
	return Receipt{CID: id, Backends: map[string]cid.Cid{first.Name: id}}, nil
}

// Close releases backend resources in reverse open order.
func (t *Target) Close() error {
	var firstErr error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.closers = nil
	return firstErr
}
