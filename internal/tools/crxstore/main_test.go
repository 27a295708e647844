package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/crx/crx"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeContainer(t *testing.T) (string, []byte) {
	t.Helper()
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "manifest.json"), []byte(`{"name":"x"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ext.crx")
	if _, err := (&crx.Packager{}).Package(src, path); err != nil {
		t.Fatalf("Package: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return path, b
}

func TestPutGetHasLocalFS(t *testing.T) {
	path, raw := writeContainer(t)
	dir := t.TempDir()

	code, out, errOut := runCmd(t, "put", "--localfs-dir", dir, path)
	if code != 0 {
		t.Fatalf("put: exit %d: %s", code, errOut)
	}
	id := strings.TrimSpace(out)

	code, cidOut, _ := runCmd(t, "cid", path)
	if code != 0 || strings.TrimSpace(cidOut) != id {
		t.Fatalf("cid: exit %d, got %q want %q", code, cidOut, id)
	}

	code, hasOut, _ := runCmd(t, "has", "--localfs-dir", dir, "--cid", id)
	if code != 0 || strings.TrimSpace(hasOut) != "present" {
		t.Fatalf("has: exit %d out %q", code, hasOut)
	}

	fetched := filepath.Join(t.TempDir(), "fetched.crx")
	if code, _, errOut := runCmd(t, "get", "--localfs-dir", dir, "--cid", id, "--out", fetched); code != 0 {
		t.Fatalf("get: exit %d: %s", code, errOut)
	}
	got, err := os.ReadFile(fetched)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("fetched bytes differ")
	}
}

func TestPutRefusesUnverifiedFiles(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.crx")
	if err := os.WriteFile(bad, []byte("not a container"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	dir := t.TempDir()
	if code, _, _ := runCmd(t, "put", "--localfs-dir", dir, bad); code != 1 {
		t.Fatalf("put unverified: exit %d", code)
	}
	code, out, _ := runCmd(t, "put", "--localfs-dir", dir, "--no-verify", bad)
	if code != 0 {
		t.Fatalf("put --no-verify: exit %d", code)
	}
	id := strings.TrimSpace(out)
	if code, _, _ := runCmd(t, "get", "--localfs-dir", dir, "--cid", id); code != 1 {
		t.Fatalf("get of unverifiable container: exit %d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"nope"},
		{"get", "--localfs-dir", t.TempDir()},
		{"get", "--localfs-dir", t.TempDir(), "--cid", "not-a-cid"},
		{"has"},
		{"cid"},
	} {
		if code, _, _ := runCmd(t, args...); code != 2 {
			t.Fatalf("%v: expected exit 2, got %d", args, code)
		}
	}
}
