// Package archiver turns a directory tree into the ZIP payload of a container.
//
// Output is canonical for a given tree: entries are written in a fixed order
// with normalized headers (fixed timestamp, fixed mode), so archiving the same
// tree twice yields the same bytes.
package archiver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

var (
	ErrNotDirectory = errors.New("archiver: source is not a directory")
	ErrInvalidName  = errors.New("archiver: invalid entry name")
)

// dosEpoch is the earliest timestamp a ZIP header can carry.
var dosEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Zip archives directories as DEFLATE-compressed ZIP files.
type Zip struct {
	// Level is the flate level. Zero selects flate.DefaultCompression.
	Level int
}

// Archive returns the ZIP bytes for every regular file under root.
//
// Entries named in inject are written first (sorted by cleaned name) and are
// not read from disk. An injected entry replaces a tree file of the same name;
// two inject keys that clean to the same name are rejected with
// ErrInvalidName. The tree is then walked depth-first: within a directory entries
// are visited in lexical order, files are added as they are met and
// subdirectories are descended into as they are met.
func (z Zip) Archive(root string, inject map[string][]byte) ([]byte, error) {
	st, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
		}
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	level := z.Level
	if level == 0 {
		level = flate.DefaultCompression
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, level)
	})

	injected := make(map[string][]byte, len(inject))
	for name, data := range inject {
		clean := CleanName(name)
		if clean == "" {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		if _, dup := injected[clean]; dup {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: %q names an entry that is already injected", ErrInvalidName, name)
		}
		injected[clean] = data
	}
	names := make([]string, 0, len(injected))
	for name := range injected {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeEntry(zw, name, bytes.NewReader(injected[name])); err != nil {
			_ = zw.Close()
			return nil, err
		}
	}

	w := walker{zw: zw, injected: injected}
	if err := w.walk(root, ""); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// walker writes the tree. Files whose entry name was injected are skipped so
// every name occurs once in the archive.
type walker struct {
	zw       *zip.Writer
	injected map[string][]byte
}

func (w walker) walk(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	// os.ReadDir sorts by file name.
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		name := e.Name()
		if prefix != "" {
			name = prefix + "/" + name
		}

		// Stat follows symlinks, so linked files and directories are archived
		// by content.
		st, err := os.Stat(full)
		if err != nil {
			return err
		}
		switch {
		case st.Mode().IsRegular():
			if _, ok := w.injected[name]; ok {
				continue
			}
			if err := addFile(w.zw, full, name); err != nil {
				return err
			}
		case st.IsDir():
			if err := w.walk(full, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeEntry(zw, name, f)
}

func writeEntry(zw *zip.Writer, name string, r io.Reader) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: dosEpoch,
	}
	hdr.SetMode(0o644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

// CleanName normalizes an archive entry name to forward slashes with no
// leading "./" or "/". It returns "" when the name is empty or contains
// "." or ".." segments.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
