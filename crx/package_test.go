package crx

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/opencontainers/go-digest"

	"xdao.co/crx/keys"
)

func zipNames(t *testing.T, archive []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s): %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s): %v", f.Name, err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func TestPackageRoundTrip(t *testing.T) {
	src := sampleExtension(t)
	dst := filepath.Join(t.TempDir(), "sample.crx")

	res, err := fixedPackager(t).Package(src, dst)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if int64(len(raw)) != res.Size {
		t.Fatalf("result size %d, file size %d", res.Size, len(raw))
	}

	if string(raw[0:4]) != "Cr24" || binary.LittleEndian.Uint32(raw[4:8]) != 3 {
		t.Fatalf("bad prefix %x", raw[:8])
	}
	hl := int(binary.LittleEndian.Uint32(raw[8:12]))

	c, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.HeaderBytes) != hl || len(raw) != 12+hl+len(c.Archive) {
		t.Fatalf("layout lengths inconsistent")
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.PayloadDigest() != sha256Digest(c.Archive) {
		t.Fatalf("payload digest = %s", c.PayloadDigest())
	}

	// The embedded key re-derives the embedded id.
	pub := c.Header.SHA256WithRSA[0].PublicKey
	sum := sha256.Sum256(pub)
	if !bytes.Equal(c.ID[:], sum[:16]) || c.ID != res.ID {
		t.Fatalf("crx_id does not match embedded public key")
	}
	kp := testKeyPair(t)
	if !bytes.Equal(pub, kp.PublicDER) {
		t.Fatalf("embedded public key differs from provider key")
	}

	files := zipNames(t, c.Archive)
	if files["manifest.json"] == "" || files["icons/icon16.png"] != "\x89PNG fake" {
		t.Fatalf("archive missing source files: %v", files)
	}
}

func TestBuildIsDeterministicForFixedKey(t *testing.T) {
	src := sampleExtension(t)
	p := fixedPackager(t)

	a, err := p.Build(src)
	if err != nil {
		t.Fatalf("Build(a): %v", err)
	}
	b, err := p.Build(src)
	if err != nil {
		t.Fatalf("Build(b): %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatalf("expected identical containers for a fixed key and tree")
	}
}

func TestPackageEmptyDirectory(t *testing.T) {
	b, err := fixedPackager(t).Build(t.TempDir())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n := len(zipNames(t, b.Archive)); n != 0 {
		t.Fatalf("expected empty archive, got %d entries", n)
	}
	c, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestPackageInjectedEntriesAreSigned(t *testing.T) {
	src := sampleExtension(t)
	p := fixedPackager(t)
	p.Inject = map[string][]byte{"_metadata/computed_hashes.json": []byte(`{"v":1}`)}

	b, err := p.Build(src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	files := zipNames(t, b.Archive)
	if files["_metadata/computed_hashes.json"] != `{"v":1}` || files["background.js"] == "" {
		t.Fatalf("archive missing injected or tree entries: %v", files)
	}

	c, err := Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify over combined archive: %v", err)
	}

	// A container holding only the tree must not verify against this header.
	plain, err := fixedPackager(t).Build(src)
	if err != nil {
		t.Fatalf("Build(plain): %v", err)
	}
	if b.PayloadDigest() == plain.PayloadDigest() {
		t.Fatalf("injected entries must change the payload digest")
	}
	mixed, err := Parse(Assemble(b.Header, plain.Archive))
	if err != nil {
		t.Fatalf("Parse(mixed): %v", err)
	}
	if err := mixed.Verify(); !IsKind(err, KindVerify) {
		t.Fatalf("expected verify failure for pre-injection archive, got %v", err)
	}
}

func TestPackageDetectsTampering(t *testing.T) {
	b, err := fixedPackager(t).Build(sampleExtension(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	raw := b.Bytes()
	raw[len(raw)-30] ^= 0x01

	c, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := c.Verify(); !IsKind(err, KindVerify) {
		t.Fatalf("expected verify error after tampering, got %v", err)
	}
}

func TestPackageInputErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	calls := 0
	p := &Packager{Keys: countingProvider{inner: keys.Static{Key: testKey(t)}, calls: &calls}}

	for _, src := range []string{"", filepath.Join(dir, "missing"), file} {
		_, err := p.Package(src, filepath.Join(dir, "out.crx"))
		if !IsKind(err, KindInput) {
			t.Fatalf("%q: expected input error, got %v", src, err)
		}
	}
	if calls != 0 {
		t.Fatalf("key provider called %d times before input validation", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.crx")); !os.IsNotExist(err) {
		t.Fatalf("no output expected on input error")
	}
}

func TestPackageKeyError(t *testing.T) {
	p := &Packager{Keys: keys.Ephemeral{Bits: 512}}
	_, err := p.Build(t.TempDir())
	if !IsKind(err, KindKey) || !errors.Is(err, keys.ErrKeyTooSmall) {
		t.Fatalf("expected key error wrapping ErrKeyTooSmall, got %v", err)
	}
}

type failingArchiver struct{}

func (failingArchiver) Archive(string, map[string][]byte) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func TestPackageArchiveError(t *testing.T) {
	p := fixedPackager(t)
	p.Archiver = failingArchiver{}
	_, err := p.Build(t.TempDir())
	if !IsKind(err, KindArchive) || RuleID(err) != "CRX-ARCHIVE-001" {
		t.Fatalf("expected archive error, got %v", err)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	for _, src := range []string{
		filepath.Join("some", "dir", "my-ext"),
		filepath.Join("some", "my-ext") + string(filepath.Separator),
	} {
		got, err := DefaultOutputPath(src)
		if err != nil || got != "my-ext.crx" {
			t.Fatalf("DefaultOutputPath(%q) = %q, %v", src, got, err)
		}
	}
}

func TestDefaultOutputPathRejectsRoot(t *testing.T) {
	root := string(filepath.Separator)
	if vol := filepath.VolumeName(os.TempDir()); vol != "" {
		root = vol + root
	}
	got, err := DefaultOutputPath(root)
	if RuleID(err) != "CRX-INPUT-004" {
		t.Fatalf("DefaultOutputPath(%q) = %q, %v; want CRX-INPUT-004", root, got, err)
	}

	calls := 0
	p := &Packager{Keys: countingProvider{inner: keys.Static{Key: testKey(t)}, calls: &calls}}
	if _, err := p.Package(root, ""); !IsKind(err, KindInput) {
		t.Fatalf("Package(root, \"\"): expected input error, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("root source must be refused before key generation")
	}
}

func TestPackageDefaultDestination(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ext-name")
	if err := os.Mkdir(src, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	t.Chdir(t.TempDir())

	if err := Package(src, ""); err != nil {
		t.Fatalf("Package: %v", err)
	}
	c, err := ReadFile("ext-name.crx")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func sha256Digest(b []byte) digest.Digest {
	sum := sha256.Sum256(b)
	return digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(sum[:]))
}

type countingProvider struct {
	inner keys.Provider
	calls *int
}

func (c countingProvider) Generate() (*keys.KeyPair, error) {
	*c.calls++
	return c.inner.Generate()
}
