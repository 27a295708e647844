// Command crxstore puts and gets containers in a content-addressed store.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/crx/cidutil"
	"xdao.co/crx/crx"
	"xdao.co/crx/storage"
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
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "has":
		return cmdHas(args[1:], out, errOut)
	case "cid":
		return cmdCID(args[1:], out, errOut)
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
	fmt.Fprintln(w, "crxstore: container store tool for walkthroughs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  crxstore put --backend localfs --localfs-dir <dir> [--no-verify] <file.crx>")
	fmt.Fprintln(w, "  crxstore get --backend localfs --localfs-dir <dir> --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  crxstore has --backend grpc --grpc-target <host:port> --cid <cid>")
	fmt.Fprintln(w, "  crxstore cid <file.crx>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - put and get check container signatures unless --no-verify is set")
	fmt.Fprintln(w, "  - grpc backend talks to crx-casd")
}

type commonFlags struct {
	backend      string
	listBackends bool
	opts         casregistry.Options
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "Container store backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	c.opts = casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (c *commonFlags) open() (storage.Store, func() error, error) {
	return casregistry.Open(c.backend, casregistry.UsageCLI, c.opts)
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var noVerify bool
	fs.BoolVar(&noVerify, "no-verify", false, "Store the file without checking its signature")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: crxstore put [common flags] <file.crx>")
		return 2
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	if !noVerify {
		if err := crx.Validate(b); err != nil {
			fmt.Fprintf(errOut, "refusing to store %s: %v\n", filepath.Base(p), err)
			return 1
		}
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	id, err := store.Put(b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var cidStr string
	var outPath string
	var noVerify bool
	fs.StringVar(&cidStr, "cid", "", "CID to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")
	fs.BoolVar(&noVerify, "no-verify", false, "Skip the signature check on the fetched container")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if cidStr == "" {
		fmt.Fprintln(errOut, "missing --cid")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: crxstore get [common flags] --cid <cid> [--out <file>]")
		return 2
	}
	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "%v: %v\n", storage.ErrInvalidCID, err)
		return 2
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	b, err := store.Get(id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if !noVerify {
		if err := crx.Validate(b); err != nil {
			fmt.Fprintf(errOut, "stored container does not verify: %v\n", err)
			return 1
		}
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("has", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var cidStr string
	fs.StringVar(&cidStr, "cid", "", "CID to look up")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: crxstore has [common flags] --cid <cid>")
		return 2
	}
	id, err := cidutil.Parse(cidStr)
	if err != nil {
		fmt.Fprintf(errOut, "%v: %v\n", storage.ErrInvalidCID, err)
		return 2
	}

	store, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if !store.Has(id) {
		_, _ = fmt.Fprintln(out, "absent")
		return 1
	}
	_, _ = fmt.Fprintln(out, "present")
	return 0
}

func cmdCID(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: crxstore cid <file.crx>")
		return 2
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(args[0]), err)
		return 1
	}
	id, err := cidutil.ContainerCID(b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	_, _ = fmt.Fprintln(out, id.String())
	return 0
}
