// Package casregistry links container store backends into binaries.
//
// A backend declares its options once. The registry exposes those options
// as command-line flags and accepts the same keys from a config file, so a
// store opened with --localfs-dir=/x and one opened from
// {"localfs-dir":"/x"} go through the same Open call.
package casregistry

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/crx/storage"
)

// Option is one backend setting. Name doubles as the flag name and the
// config key; names are global across backends and should carry the backend
// name as a prefix (e.g. "localfs-dir").
type Option struct {
	Name    string
	Default string
	Help    string
}

// Backend is a build-time plugin that opens a container store.
//
// Backends register themselves in init() and are enabled in a binary by
// importing the backend package, usually as a blank import.
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the store. opts holds a value for every declared
	// option (defaults filled in). It returns an optional close function.
	Open func(opts Options) (storage.Store, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
	owners   = map[string]string{} // option name -> backend name
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	seen := map[string]bool{}
	for _, o := range b.Options {
		if o.Name == "" || strings.HasPrefix(o.Name, "-") {
			return fmt.Errorf("casregistry: backend %q has an invalid option name %q", b.Name, o.Name)
		}
		if seen[o.Name] {
			return fmt.Errorf("casregistry: backend %q declares option %q twice", b.Name, o.Name)
		}
		seen[o.Name] = true
		if owner, taken := owners[o.Name]; taken {
			return fmt.Errorf("casregistry: option %q of backend %q already belongs to %q", o.Name, b.Name, owner)
		}
	}
	for _, o := range b.Options {
		owners[o.Name] = b.Name
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags adds one flag per option of every backend matching usage
// and returns the Options the flags write into. Only flags set on the
// command line appear in the result; Open fills in defaults.
//
// Registering every backend's flags up front allows single-pass parsing
// (the flag package rejects unknown flags).
func RegisterFlags(fs *flag.FlagSet, usage Usage) Options {
	opts := Options{}
	for _, b := range List(usage) {
		for _, o := range b.Options {
			name := o.Name
			help := fmt.Sprintf("%s (for --backend=%s)", o.Help, b.Name)
			if o.Default != "" {
				help += fmt.Sprintf(" (default %q)", o.Default)
			}
			fs.Func(name, help, func(v string) error {
				opts[name] = v
				return nil
			})
		}
	}
	return opts
}

// Open opens the named backend if it exists and matches usage.
//
// opts may carry options of other backends (as RegisterFlags output does);
// they are ignored. Use OpenStrict for config input, where a foreign key is
// a mistake.
func Open(name string, usage Usage, opts Options) (storage.Store, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	return b.Open(b.resolve(opts))
}

// OpenStrict is Open that rejects keys the backend does not declare.
func OpenStrict(name string, usage Usage, opts Options) (storage.Store, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	for k := range opts {
		if !b.declares(k) {
			return nil, nil, fmt.Errorf("backend %q has no option %q", name, k)
		}
	}
	return b.Open(b.resolve(opts))
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}

func (b Backend) declares(name string) bool {
	for _, o := range b.Options {
		if o.Name == name {
			return true
		}
	}
	return false
}

// resolve returns the backend's own options with defaults applied.
func (b Backend) resolve(in Options) Options {
	out := make(Options, len(b.Options))
	for _, o := range b.Options {
		if v, ok := in[o.Name]; ok {
			out[o.Name] = v
			continue
		}
		out[o.Name] = o.Default
	}
	return out
}
