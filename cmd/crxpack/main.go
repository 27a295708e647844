package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ipfs/go-cid"

	"xdao.co/crx/archiver"
	"xdao.co/crx/crx"
	"xdao.co/crx/keys"
	"xdao.co/crx/storage/casconfig"
	"xdao.co/crx/storage/casregistry"

	_ "xdao.co/crx/storage/grpccas"
	_ "xdao.co/crx/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "pack":
		return cmdPack(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "id":
		return cmdID(args[1:], out, errOut)
	case "keygen":
		return cmdKeygen(args[1:], out, errOut)
	case "keys":
		return cmdKeys(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "crxpack: build signed CRX3 extension packages")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  crxpack pack [-o <out.crx>] [--key <pem> [--create-key] | --signer <name>] [--inject name=path ...] [--level n] [-v] <dir>")
	fmt.Fprintln(w, "  crxpack pack ... (--backend <name> [backend flags] | --cas-config <cfg.json>) <dir>")
	fmt.Fprintln(w, "  crxpack verify <file.crx>")
	fmt.Fprintln(w, "  crxpack id <file.crx>")
	fmt.Fprintln(w, "  crxpack keygen --name <name> [--dir <keystore>] [--bits n] [--force]")
	fmt.Fprintln(w, "  crxpack keys [--dir <keystore>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - without --key or --signer, pack signs with a fresh key that is discarded")
	fmt.Fprintln(w, "  - the output defaults to <dir basename>.crx in the current directory")
	fmt.Fprintln(w, "  - keygen stores keys under ~/.xdao/crx-keys/<name>.pem (0600)")
	fmt.Fprintln(w, "  - publishing prints the CIDv1 (raw, sha2-256) of the container bytes")
	fmt.Fprintf(w, "  - backends: %s\n", strings.Join(casregistry.Names(casregistry.UsageCLI), ", "))
}

type injectList map[string]string

func (l injectList) String() string {
	parts := make([]string, 0, len(l))
	for k, v := range l {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (l injectList) Set(v string) error {
	name, path, ok := strings.Cut(v, "=")
	if !ok || name == "" || path == "" {
		return fmt.Errorf("expected name=path, got %q", v)
	}
	clean := archiver.CleanName(name)
	if clean == "" {
		return fmt.Errorf("invalid archive name %q", name)
	}
	if _, dup := l[clean]; dup {
		return fmt.Errorf("duplicate inject name %q", name)
	}
	l[clean] = path
	return nil
}

func (l injectList) load() (map[string][]byte, error) {
	if len(l) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(l))
	for name, path := range l {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read --inject %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "crxpack"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func cmdPack(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var output string
	var keyPath string
	var createKey bool
	var signer string
	var keyDir string
	var level int
	var verbose bool
	var backend string
	var casConfigPath string
	inject := injectList{}

	fs.StringVar(&output, "o", "", "Output path (default <dir basename>.crx)")
	fs.StringVar(&keyPath, "key", "", "PEM private key to sign with")
	fs.BoolVar(&createKey, "create-key", false, "Create --key if it does not exist")
	fs.StringVar(&signer, "signer", "", "Sign with a stored key by name (from 'crxpack keygen')")
	fs.StringVar(&keyDir, "dir", "", "Key store directory for --signer (default ~/.xdao/crx-keys)")
	fs.IntVar(&level, "level", 0, "Deflate level 1-9 (0 = default)")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	fs.Var(inject, "inject", "Add a file to the archive as name=path (repeatable)")
	fs.StringVar(&backend, "backend", "", "Publish to this store backend after packing")
	fs.StringVar(&casConfigPath, "cas-config", "", "Publish to the stores described by this JSON file")
	backendOpts := casregistry.RegisterFlags(fs, casregistry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: crxpack pack [flags] <dir>")
		return 2
	}
	if keyPath != "" && signer != "" {
		fmt.Fprintln(errOut, "conflicting signer flags: --key cannot be combined with --signer")
		return 2
	}
	if createKey && keyPath == "" {
		fmt.Fprintln(errOut, "--create-key requires --key")
		return 2
	}
	if level < 0 || level > 9 {
		fmt.Fprintln(errOut, "--level must be between 0 and 9")
		return 2
	}
	if backend != "" && casConfigPath != "" {
		fmt.Fprintln(errOut, "conflicting publish flags: --backend cannot be combined with --cas-config")
		return 2
	}
	src := fs.Arg(0)
	logger := newLogger(errOut, verbose)

	p := &crx.Packager{
		Archiver: archiver.Zip{Level: level},
		Logger:   logger,
	}
	switch {
	case keyPath != "":
		p.Keys = keys.FileProvider{Path: keyPath, Create: createKey}
	case signer != "":
		ks, err := keys.OpenKeyStore(keyDir)
		if err != nil {
			fmt.Fprintf(errOut, "keys: %v\n", err)
			return 1
		}
		if err := keys.CheckKeyName(signer); err != nil {
			fmt.Fprintf(errOut, "invalid --signer: %v\n", err)
			return 2
		}
		p.Keys = ks.Provider(signer)
	}

	injected, err := inject.load()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	p.Inject = injected

	res, err := p.Package(src, output)
	if err != nil {
		logger.Error("pack failed", "src", src, "rule", crx.RuleID(err), "err", err)
		return 1
	}
	logger.Info("packed", "path", res.Path, "id", res.ID.String(), "bytes", res.Size)
	_, _ = fmt.Fprintln(out, res.ID.String())

	if backend == "" && casConfigPath == "" {
		return 0
	}
	b, err := os.ReadFile(res.Path)
	if err != nil {
		logger.Error("read container", "path", res.Path, "err", err)
		return 1
	}
	rc, err := publish(backend, casConfigPath, backendOpts, b)
	for _, name := range sortedNames(rc.Backends) {
		logger.Info("published", "backend", name, "cid", rc.Backends[name].String())
	}
	if err != nil {
		logger.Error("publish failed", "err", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, rc.CID.String())
	return 0
}

// publish writes container to the single --backend or to every store of a
// --cas-config, under that config's policy.
func publish(backend, configPath string, opts casregistry.Options, container []byte) (casconfig.Receipt, error) {
	if configPath != "" {
		cfg, err := casconfig.LoadFile(configPath)
		if err != nil {
			return casconfig.Receipt{}, err
		}
		tgt, err := cfg.Open(casregistry.UsageCLI, "")
		if err != nil {
			return casconfig.Receipt{}, err
		}
		defer tgt.Close()
		return tgt.Publish(container)
	}
	store, closeFn, err := casregistry.Open(backend, casregistry.UsageCLI, opts)
	if err != nil {
		return casconfig.Receipt{}, err
	}
	if closeFn != nil {
		defer closeFn()
	}
	id, err := store.Put(container)
	if err != nil {
		return casconfig.Receipt{}, err
	}
	return casconfig.Receipt{CID: id, Backends: map[string]cid.Cid{backend: id}}, nil
}

func sortedNames(m map[string]cid.Cid) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: crxpack verify <file.crx>")
		return 2
	}
	c, err := crx.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid container: %v\n", err)
		return 1
	}
	if err := c.Verify(); err != nil {
		fmt.Fprintf(errOut, "verification failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "OK %s %s\n", c.ID, c.PayloadDigest())
	return 0
}

func cmdID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("id", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: crxpack id <file.crx>")
		return 2
	}
	c, err := crx.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "invalid container: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(out, c.ID)
	return 0
}

func cmdKeygen(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var dir string
	var bits int
	var force bool
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&dir, "dir", "", "Key store directory (default ~/.xdao/crx-keys)")
	fs.IntVar(&bits, "bits", keys.DefaultBits, "RSA modulus size")
	fs.BoolVar(&force, "force", false, "Overwrite an existing key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 || name == "" {
		fmt.Fprintln(errOut, "usage: crxpack keygen --name <name> [--dir <keystore>] [--bits n] [--force]")
		return 2
	}
	if err := keys.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}

	kp, err := keys.Ephemeral{Bits: bits}.Generate()
	if err != nil {
		if errors.Is(err, keys.ErrKeyTooSmall) {
			fmt.Fprintf(errOut, "invalid --bits: %v\n", err)
			return 2
		}
		fmt.Fprintf(errOut, "keygen: %v\n", err)
		return 1
	}
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	path, err := ks.Save(name, kp.Private, force)
	if err != nil {
		fmt.Fprintf(errOut, "save key: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out, "%s\t%s\n", crx.DeriveID(kp.PublicDER), filepath.Clean(path))
	return 0
}

func cmdKeys(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var dir string
	fs.StringVar(&dir, "dir", "", "Key store directory (default ~/.xdao/crx-keys)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: crxpack keys [--dir <keystore>]")
		return 2
	}
	ks, err := keys.OpenKeyStore(dir)
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	names, err := ks.List()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	for _, name := range names {
		key, err := ks.Load(name)
		if err != nil {
			fmt.Fprintf(errOut, "load %s: %v\n", name, err)
			return 1
		}
		kp, err := keys.NewKeyPair(key)
		if err != nil {
			fmt.Fprintf(errOut, "load %s: %v\n", name, err)
			return 1
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\n", name, crx.DeriveID(kp.PublicDER))
	}
	return 0
}
