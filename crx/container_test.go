package crx

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestAssembleLayout(t *testing.T) {
	header := []byte("header-bytes")
	archive := []byte("archive-bytes")
	b := Assemble(header, archive)

	if string(b[0:4]) != "Cr24" {
		t.Fatalf("magic = %q", b[0:4])
	}
	if v := binary.LittleEndian.Uint32(b[4:8]); v != 3 {
		t.Fatalf("version = %d", v)
	}
	hl := binary.LittleEndian.Uint32(b[8:12])
	if int(hl) != len(header) {
		t.Fatalf("header length = %d, want %d", hl, len(header))
	}
	if len(b) != 12+len(header)+len(archive) {
		t.Fatalf("total length = %d", len(b))
	}
	if !bytes.Equal(b[12:12+hl], header) || !bytes.Equal(b[12+hl:], archive) {
		t.Fatalf("segments not copied verbatim")
	}
}

func TestWriteFileMatchesAssemble(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.crx")
	header := []byte{1, 2, 3}
	archive := []byte{4, 5, 6, 7}

	if err := os.WriteFile(path, []byte("stale content that is longer than the new file"), 0o644); err != nil {
		t.Fatalf("WriteFile(stale): %v", err)
	}
	if err := WriteFile(path, header, archive); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, Assemble(header, archive)) {
		t.Fatalf("file bytes differ from Assemble output")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the container in the directory, found %d entries", len(entries))
	}
}

func TestWriteFileMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.crx")
	err := WriteFile(path, nil, nil)
	if !IsKind(err, KindIO) {
		t.Fatalf("expected IO error, got %v", err)
	}
}

func TestParseRejectsBadLayout(t *testing.T) {
	valid := Assemble(EncodeHeader([]byte("k"), []byte("s"), EncodeSignedData(ID{})), nil)

	badMagic := append([]byte(nil), valid...)
	copy(badMagic, "Cr23")

	badVersion := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badVersion[4:8], 2)

	badLength := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badLength[8:12], uint32(len(valid)))

	cases := []struct {
		name string
		in   []byte
		rule string
	}{
		{"short", []byte("Cr24"), "CRX-FMT-001"},
		{"magic", badMagic, "CRX-FMT-002"},
		{"version", badVersion, "CRX-FMT-003"},
		{"length", badLength, "CRX-FMT-004"},
	}
	for _, tc := range cases {
		_, err := Parse(tc.in)
		if RuleID(err) != tc.rule {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.rule, err)
		}
	}
	if _, err := Parse(valid); err != nil {
		t.Fatalf("valid container: %v", err)
	}
}

func TestVerifyRequiresMatchingID(t *testing.T) {
	kp := testKeyPair(t)
	archive := []byte("payload")

	// Signed data names an id that no proof key derives.
	signed := EncodeSignedData(ID{0xaa})
	sig, err := Sign(ComputeDigest(signed, archive), kp.Private)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	c, err := Parse(Assemble(EncodeHeader(kp.PublicDER, sig, signed), archive))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := c.Verify(); RuleID(err) != "CRX-VERIFY-006" {
		t.Fatalf("expected CRX-VERIFY-006, got %v", err)
	}
}

func TestVerifyRejectsECDSAProofs(t *testing.T) {
	h := Header{
		SHA256WithECDSA:  []Proof{{PublicKey: []byte("k"), Signature: []byte("s")}},
		SignedHeaderData: EncodeSignedData(ID{}),
	}
	c, err := Parse(Assemble(h.Marshal(), nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := c.Verify(); RuleID(err) != "CRX-VERIFY-004" {
		t.Fatalf("expected CRX-VERIFY-004, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	build, err := fixedPackager(t).Build(sampleExtension(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := build.Bytes()
	if err := Validate(b); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tampered := append([]byte(nil), b...)
	tampered[len(tampered)-1] ^= 0xff
	if err := Validate(tampered); err == nil {
		t.Fatalf("expected tampered archive to fail")
	}
	if err := Validate([]byte("Cr24")); err == nil {
		t.Fatalf("expected truncated container to fail")
	}
}
