package crx

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

const (
	// Magic opens every container file.
	Magic = "Cr24"
	// FormatVersion is the container format version written after Magic.
	FormatVersion uint32 = 3

	prefixSize = len(Magic) + 4 + 4
)

// Assemble returns Magic | version | header length | header | archive.
func Assemble(header, archive []byte) []byte {
	out := make([]byte, 0, prefixSize+len(header)+len(archive))
	out = appendPrefix(out, len(header))
	out = append(out, header...)
	return append(out, archive...)
}

func appendPrefix(b []byte, headerLen int) []byte {
	b = append(b, Magic...)
	b = binary.LittleEndian.AppendUint32(b, FormatVersion)
	return binary.LittleEndian.AppendUint32(b, uint32(headerLen))
}

// WriteFile writes the container for header and archive to path, replacing
// any existing file. Data goes to a temporary file in the same directory
// first and is renamed into place only after it has been synced, so a failed
// write never leaves a truncated container at path.
func WriteFile(path string, header, archive []byte) (err error) {
	if uint64(len(header)) > math.MaxUint32 {
		return newError(KindEncoding, "CRX-ENC-001", "header exceeds 4 GiB")
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return wrapError(KindIO, "CRX-IO-001", "create temporary container file", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	for _, part := range [][]byte{appendPrefix(nil, len(header)), header, archive} {
		if _, err = f.Write(part); err != nil {
			return wrapError(KindIO, "CRX-IO-002", "write container", err)
		}
	}
	if err = f.Sync(); err != nil {
		return wrapError(KindIO, "CRX-IO-003", "sync container", err)
	}
	if err = f.Close(); err != nil {
		return wrapError(KindIO, "CRX-IO-004", "close container", err)
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return wrapError(KindIO, "CRX-IO-005", "chmod container", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return wrapError(KindIO, "CRX-IO-006", "rename container into place", err)
	}
	return nil
}

// Container is a parsed container file. Byte slices alias the parsed input.
type Container struct {
	Version     uint32
	HeaderBytes []byte
	Header      *Header
	ID          ID
	Archive     []byte
}

// PayloadDigest returns the sha256 digest of the archive in "sha256:<hex>"
// form. Two containers with equal payload digests carry the same files even
// when their keys differ.
func (c *Container) PayloadDigest() digest.Digest {
	return digest.FromBytes(c.Archive)
}

// Parse splits b into its container parts and decodes the header.
// It does not check signatures; see Verify.
func Parse(b []byte) (*Container, error) {
	if len(b) < prefixSize {
		return nil, newError(KindFormat, "CRX-FMT-001", "container shorter than its fixed prefix")
	}
	if !bytes.Equal(b[:len(Magic)], []byte(Magic)) {
		return nil, newError(KindFormat, "CRX-FMT-002", "bad magic")
	}
	version := binary.LittleEndian.Uint32(b[4:8])
	if version != FormatVersion {
		return nil, newError(KindFormat, "CRX-FMT-003", "unsupported container version")
	}
	headerLen := uint64(binary.LittleEndian.Uint32(b[8:12]))
	if headerLen > uint64(len(b)-prefixSize) {
		return nil, newError(KindFormat, "CRX-FMT-004", "header length exceeds container size")
	}
	end := prefixSize + int(headerLen)
	headerBytes := b[prefixSize:end]

	h, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	id, err := DecodeSignedData(h.SignedHeaderData)
	if err != nil {
		return nil, err
	}
	return &Container{
		Version:     version,
		HeaderBytes: headerBytes,
		Header:      h,
		ID:          id,
		Archive:     b[end:],
	}, nil
}

// ReadFile reads and parses the container at path.
func ReadFile(path string) (*Container, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError(KindIO, "CRX-IO-010", "read container", err)
	}
	return Parse(b)
}

// Validate parses b and verifies it. Its signature matches
// storage.Validator, so stores can refuse containers that do not verify.
func Validate(b []byte) error {
	c, err := Parse(b)
	if err != nil {
		return err
	}
	return c.Verify()
}

// Verify checks every SHA-256/RSA proof against the container digest and
// requires that at least one proof key derives the embedded id.
//
// ECDSA proofs are never produced by this package and are rejected.
func (c *Container) Verify() error {
	if c == nil || c.Header == nil {
		return newError(KindVerify, "CRX-VERIFY-003", "nil container")
	}
	if len(c.Header.SHA256WithECDSA) > 0 {
		return newError(KindVerify, "CRX-VERIFY-004", "sha256_with_ecdsa proofs are not supported")
	}
	if len(c.Header.SHA256WithRSA) == 0 {
		return newError(KindVerify, "CRX-VERIFY-005", "no sha256_with_rsa proof")
	}

	digest := ComputeDigest(c.Header.SignedHeaderData, c.Archive)
	idMatched := false
	for _, p := range c.Header.SHA256WithRSA {
		pub, err := parseRSAPublicKey(p.PublicKey)
		if err != nil {
			return err
		}
		if err := VerifyDigest(pub, digest, p.Signature); err != nil {
			return err
		}
		if DeriveID(p.PublicKey) == c.ID {
			idMatched = true
		}
	}
	if !idMatched {
		return newError(KindVerify, "CRX-VERIFY-006", "no proof key matches crx_id")
	}
	return nil
}

func parseRSAPublicKey(der []byte) (*rsa.PublicKey, error) {
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, wrapError(KindVerify, "CRX-VERIFY-007", "invalid proof public key", err)
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, newError(KindVerify, "CRX-VERIFY-008", "proof public key is not RSA")
	}
	return pub, nil
}
