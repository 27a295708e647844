package crx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/opencontainers/go-digest"

	"xdao.co/crx/archiver"
	"xdao.co/crx/keys"
)

// Archiver produces the compressed payload for a source directory.
//
// Entries in inject are added to the archive in addition to the tree.
type Archiver interface {
	Archive(root string, inject map[string][]byte) ([]byte, error)
}

// Packager runs the packaging pipeline. The zero value generates a fresh
// 2048-bit key per call and archives with archiver.Zip defaults.
//
// A Packager holds no per-call state, so one value may serve concurrent
// calls as long as they write to different destinations.
type Packager struct {
	Keys     keys.Provider
	Archiver Archiver
	// Inject adds synthetic entries to every archive, ahead of the tree.
	Inject map[string][]byte
	// Logger receives one debug line per pipeline phase. Nil disables logging.
	Logger *log.Logger
}

// Build is a signed container held in memory.
type Build struct {
	ID         ID
	PublicKey  []byte
	SignedData []byte
	Signature  []byte
	Header     []byte
	Archive    []byte
}

// Bytes returns the assembled container file contents.
func (b *Build) Bytes() []byte {
	return Assemble(b.Header, b.Archive)
}

// PayloadDigest returns the sha256 digest of the archive.
func (b *Build) PayloadDigest() digest.Digest {
	return digest.FromBytes(b.Archive)
}

// Size returns the length of the assembled container.
func (b *Build) Size() int64 {
	return int64(prefixSize + len(b.Header) + len(b.Archive))
}

// Result describes a container written by Package.
type Result struct {
	Path string
	ID   ID
	Size int64
}

// Package writes the container for src to dst using a fresh key.
// An empty dst selects DefaultOutputPath(src).
func Package(src, dst string) error {
	_, err := (&Packager{}).Package(src, dst)
	return err
}

// DefaultOutputPath returns "<basename of src>.crx" in the working directory.
// A src with no usable basename, such as the filesystem root, is an input
// error.
func DefaultOutputPath(src string) (string, error) {
	base := filepath.Base(filepath.Clean(src))
	if abs, err := filepath.Abs(src); err == nil {
		base = filepath.Base(abs)
	}
	if base == "." || base == ".." || strings.ContainsAny(base, `/\`) || filepath.VolumeName(base) != "" {
		return "", newError(KindInput, "CRX-INPUT-004", "cannot derive an output name from "+src+"; pass an explicit destination")
	}
	return base + ".crx", nil
}

// Package builds the container for src and writes it to dst.
// An empty dst selects DefaultOutputPath(src).
func (p *Packager) Package(src, dst string) (*Result, error) {
	if dst == "" {
		def, err := DefaultOutputPath(src)
		if err != nil {
			return nil, err
		}
		dst = def
	}
	b, err := p.Build(src)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(dst, b.Header, b.Archive); err != nil {
		return nil, err
	}
	p.debug("wrote container", "path", dst, "id", b.ID.String(), "bytes", b.Size())
	return &Result{Path: dst, ID: b.ID, Size: b.Size()}, nil
}

// Build runs the pipeline up to, but not including, writing the file.
//
// The archive is produced once and the same bytes are digested and returned
// for assembly.
func (p *Packager) Build(src string) (*Build, error) {
	if err := checkSource(src); err != nil {
		return nil, err
	}

	kp, err := p.keyProvider().Generate()
	if err != nil {
		return nil, wrapError(KindKey, "CRX-KEY-001", "obtain signing key", err)
	}
	if kp == nil || kp.Private == nil || len(kp.PublicDER) == 0 {
		return nil, newError(KindKey, "CRX-KEY-002", "key provider returned an incomplete key pair")
	}

	archive, err := p.payloadArchiver().Archive(src, p.Inject)
	if err != nil {
		if errors.Is(err, archiver.ErrNotDirectory) {
			return nil, wrapError(KindInput, "CRX-INPUT-002", "source is not a directory", err)
		}
		return nil, wrapError(KindArchive, "CRX-ARCHIVE-001", "archive source directory", err)
	}
	p.debug("archived source", "src", src, "bytes", len(archive), "digest", digest.FromBytes(archive))

	id := DeriveID(kp.PublicDER)
	signedData := EncodeSignedData(id)
	digest := ComputeDigest(signedData, archive)
	sig, err := Sign(digest, kp.Private)
	if err != nil {
		return nil, err
	}
	header := EncodeHeader(kp.PublicDER, sig, signedData)
	p.debug("signed header", "id", id.String(), "header_bytes", len(header))

	return &Build{
		ID:         id,
		PublicKey:  kp.PublicDER,
		SignedData: signedData,
		Signature:  sig,
		Header:     header,
		Archive:    archive,
	}, nil
}

func checkSource(src string) error {
	if src == "" {
		return newError(KindInput, "CRX-INPUT-003", "empty source path")
	}
	st, err := os.Stat(src)
	if err != nil {
		return wrapError(KindInput, "CRX-INPUT-001", "stat source directory", err)
	}
	if !st.IsDir() {
		return newError(KindInput, "CRX-INPUT-002", "source is not a directory: "+src)
	}
	return nil
}

func (p *Packager) keyProvider() keys.Provider {
	if p.Keys == nil {
		return keys.Ephemeral{}
	}
	return p.Keys
}

func (p *Packager) payloadArchiver() Archiver {
	if p.Archiver == nil {
		return archiver.Zip{}
	}
	return p.Archiver
}

func (p *Packager) debug(msg string, keyvals ...interface{}) {
	if p.Logger != nil {
		p.Logger.Debug(msg, keyvals...)
	}
}
