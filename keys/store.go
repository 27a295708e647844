package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const keyFileExt = ".pem"

// KeyStore keeps named RSA signing keys as PEM files in a directory.
//
// EXPERIMENTAL: this filesystem-backed storage surface may change in MINOR
// releases.
//
// Layout: <Directory>/<name>.pem, PKCS#8, mode 0600.
type KeyStore struct {
	Directory string
}

// DefaultDirectory returns ~/.xdao/crx-keys.
func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "crx-keys"), nil
}

// OpenKeyStore returns a KeyStore rooted at directory, or at
// DefaultDirectory when directory is empty. The directory is created lazily
// on the first Save.
func OpenKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

// Path returns the file that holds the key called name.
func (ks *KeyStore) Path(name string) string {
	return filepath.Join(ks.Directory, name+keyFileExt)
}

// Save writes key under name. Without overwrite an existing key is an error.
func (ks *KeyStore) Save(name string, key *rsa.PrivateKey, overwrite bool) (string, error) {
	if err := CheckKeyName(name); err != nil {
		return "", err
	}
	if _, err := NewKeyPair(key); err != nil {
		return "", err
	}
	b, err := EncodePEM(key)
	if err != nil {
		return "", err
	}
	path := ks.Path(name)
	if err := writeKeyFile(path, b, overwrite); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the key called name.
func (ks *KeyStore) Load(name string) (*rsa.PrivateKey, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	return LoadPEMFile(ks.Path(name))
}

// Provider returns a Provider that signs with the stored key called name.
func (ks *KeyStore) Provider(name string) FileProvider {
	return FileProvider{Path: ks.Path(name)}
}

// List returns the sorted names of all stored keys.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyFileExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), keyFileExt)
		if CheckKeyName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// EncodePEM encodes key as a PKCS#8 "PRIVATE KEY" PEM block.
func EncodePEM(key *rsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePEM decodes a PKCS#8 or PKCS#1 RSA private key.
func ParsePEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("keys: no PEM block found")
	}
	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keys: parse pkcs8: %w", err)
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T is not an rsa key", ErrUnsupportedPEM, k)
		}
		return rk, nil
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("keys: parse pkcs1: %w", err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPEM, block.Type)
	}
}

// LoadPEMFile reads and decodes the key at path. A missing file yields an
// error wrapping ErrKeyNotFound.
func LoadPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return nil, err
	}
	return ParsePEM(data)
}

func writeKeyFile(filePath string, data []byte, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return err
	}
	return file.Close()
}
