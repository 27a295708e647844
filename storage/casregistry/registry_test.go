package casregistry

import (
	"flag"
	"strings"
	"testing"
	"time"

	"xdao.co/crx/storage"
	"xdao.co/crx/storage/testkit"
)

func memOpen(opts Options) (storage.Store, func() error, error) {
	return testkit.NewMemStore(), nil, nil
}

func TestRegisterValidation(t *testing.T) {
	cases := []Backend{
		{Open: memOpen, Usage: UsageCLI},
		{Name: "x-noopen", Usage: UsageCLI},
		{Name: "x-nousage", Open: memOpen},
		{Name: "x-emptyopt", Open: memOpen, Usage: UsageCLI, Options: []Option{{}}},
		{Name: "x-dashopt", Open: memOpen, Usage: UsageCLI, Options: []Option{{Name: "-x-dashopt-dir"}}},
		{Name: "x-twice", Open: memOpen, Usage: UsageCLI, Options: []Option{{Name: "x-twice-dir"}, {Name: "x-twice-dir"}}},
	}
	for _, b := range cases {
		if err := Register(b); err == nil {
			t.Fatalf("expected error registering %q", b.Name)
		}
	}
}

func TestRegisterRejectsOptionOwnedElsewhere(t *testing.T) {
	MustRegister(Backend{Name: "own-a", Usage: UsageCLI, Open: memOpen, Options: []Option{{Name: "own-shared"}}})
	err := Register(Backend{Name: "own-b", Usage: UsageCLI, Open: memOpen, Options: []Option{{Name: "own-shared"}}})
	if err == nil || !strings.Contains(err.Error(), `"own-a"`) {
		t.Fatalf("expected ownership error naming own-a, got %v", err)
	}
	for _, n := range Names(UsageCLI) {
		if n == "own-b" {
			t.Fatalf("rejected backend was registered")
		}
	}
}

func TestFlagsAndConfigShareOpen(t *testing.T) {
	var seen Options
	mem := testkit.NewMemStore()

	MustRegister(Backend{
		Name:        "test-mem",
		Description: "in-memory test backend",
		Usage:       UsageDaemon,
		Options: []Option{
			{Name: "test-mem-label", Help: "label"},
			{Name: "test-mem-ttl", Default: "1m", Help: "ttl"},
		},
		Open: func(opts Options) (storage.Store, func() error, error) {
			if _, err := opts.Require("test-mem-label"); err != nil {
				return nil, nil, err
			}
			seen = opts
			return mem, nil, nil
		},
	})
	if err := Register(Backend{Name: "test-mem", Open: memOpen, Usage: UsageCLI}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	opts := RegisterFlags(fs, UsageDaemon)
	if fs.Lookup("test-mem-ttl") == nil || !strings.Contains(fs.Lookup("test-mem-ttl").Usage, "--backend=test-mem") {
		t.Fatalf("flag help does not name the backend")
	}
	if err := fs.Parse([]string{"--test-mem-label=x"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	s, _, err := Open("test-mem", UsageDaemon, opts)
	if err != nil || s != storage.Store(mem) {
		t.Fatalf("Open: %v", err)
	}
	if seen["test-mem-label"] != "x" || seen["test-mem-ttl"] != "1m" {
		t.Fatalf("flag values or defaults not resolved: %v", seen)
	}

	cfg := Options{"test-mem-label": "from-config", "test-mem-ttl": "5s"}
	if _, _, err := OpenStrict("test-mem", UsageDaemon, cfg); err != nil {
		t.Fatalf("OpenStrict: %v", err)
	}
	if seen["test-mem-label"] != "from-config" {
		t.Fatalf("config not passed through: %v", seen)
	}
	if d, _ := seen.Duration("test-mem-ttl"); d != 5*time.Second {
		t.Fatalf("ttl = %v", d)
	}

	if _, _, err := Open("test-mem", UsageDaemon, Options{"localfs-dir": "/elsewhere", "test-mem-label": "y"}); err != nil {
		t.Fatalf("Open must ignore other backends' options: %v", err)
	}
	if _, _, err := OpenStrict("test-mem", UsageDaemon, Options{"test-mem-lable": "y"}); err == nil {
		t.Fatalf("expected OpenStrict to reject an undeclared option")
	}
	if _, _, err := Open("test-mem", UsageDaemon, nil); err == nil || !strings.Contains(err.Error(), "--test-mem-label") {
		t.Fatalf("expected missing option error, got %v", err)
	}
	if _, _, err := Open("test-mem", UsageCLI, opts); err == nil {
		t.Fatalf("expected usage mismatch error")
	}
	if _, _, err := Open("nope", UsageDaemon, opts); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	found := false
	for _, n := range Names(UsageDaemon) {
		if n == "test-mem" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names(UsageDaemon) missing test-mem")
	}
	for _, n := range Names(UsageCLI) {
		if n == "test-mem" {
			t.Fatalf("Names(UsageCLI) must not list daemon-only backend")
		}
	}
}

func TestOptionsParsing(t *testing.T) {
	o := Options{"d": " 2s ", "n": "42", "bad-d": "soon", "bad-n": "many"}
	if d, err := o.Duration("d"); err != nil || d != 2*time.Second {
		t.Fatalf("Duration = %v, %v", d, err)
	}
	if n, err := o.Int("n"); err != nil || n != 42 {
		t.Fatalf("Int = %v, %v", n, err)
	}
	if d, err := o.Duration("absent"); err != nil || d != 0 {
		t.Fatalf("Duration(absent) = %v, %v", d, err)
	}
	if _, err := o.Duration("bad-d"); err == nil || !strings.HasPrefix(err.Error(), "--bad-d:") {
		t.Fatalf("expected --bad-d error, got %v", err)
	}
	if _, err := o.Int("bad-n"); err == nil {
		t.Fatalf("expected Int error")
	}
	if _, err := o.Require("absent"); err == nil || err.Error() != "missing --absent" {
		t.Fatalf("Require(absent) = %v", err)
	}
}
