package crx

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"xdao.co/crx/keys"
)

var (
	sharedKeyOnce sync.Once
	sharedKey     *rsa.PrivateKey
	sharedKeyErr  error
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if sharedKeyErr != nil {
		t.Fatalf("rsa.GenerateKey: %v", sharedKeyErr)
	}
	return sharedKey
}

func testKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.NewKeyPair(testKey(t))
	if err != nil {
		t.Fatalf("NewKeyPair: %v", err)
	}
	return kp
}

func fixedPackager(t *testing.T) *Packager {
	t.Helper()
	return &Packager{Keys: keys.Static{Key: testKey(t)}}
}

func writeSourceTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

func sampleExtension(t *testing.T) string {
	t.Helper()
	return writeSourceTree(t, map[string]string{
		"manifest.json":    `{"manifest_version":3,"name":"sample","version":"1.0"}`,
		"background.js":    "chrome.runtime.onInstalled.addListener(() => {});",
		"icons/icon16.png": "\x89PNG fake",
	})
}
