package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// MinBits is the smallest RSA modulus accepted for signing containers.
	MinBits = 2048
	// DefaultBits is the modulus size used when none is configured.
	DefaultBits = 2048
	// PublicExponent is the RSA public exponent of every generated key.
	PublicExponent = 65537
)

var (
	ErrKeyTooSmall    = errors.New("keys: rsa modulus smaller than 2048 bits")
	ErrNilKey         = errors.New("keys: nil private key")
	ErrBadExponent    = errors.New("keys: rsa public exponent must be 65537")
	ErrKeyNotFound    = errors.New("keys: key not found")
	ErrUnsupportedPEM = errors.New("keys: unsupported PEM block")
)

// KeyPair is an RSA signing key together with its exported public key.
//
// PublicDER is the DER SubjectPublicKeyInfo encoding of Private.PublicKey.
// It is computed once in NewKeyPair; callers must use these exact bytes both
// to derive the container id and to embed in the header.
type KeyPair struct {
	Private   *rsa.PrivateKey
	PublicDER []byte
}

// Provider supplies the key pair for one packaging call.
type Provider interface {
	Generate() (*KeyPair, error)
}

// NewKeyPair validates key and exports its public half.
func NewKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	if key == nil {
		return nil, ErrNilKey
	}
	if key.N.BitLen() < MinBits {
		return nil, fmt.Errorf("%w: got %d", ErrKeyTooSmall, key.N.BitLen())
	}
	if key.E != PublicExponent {
		return nil, ErrBadExponent
	}
	der, err := ExportPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: key, PublicDER: der}, nil
}

// ExportPublicKey returns the DER encoding of the SubjectPublicKeyInfo for pub.
func ExportPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, errors.New("keys: nil public key")
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return der, nil
}

// Ephemeral generates a new key pair on every call.
type Ephemeral struct {
	// Bits is the modulus size. Zero means DefaultBits.
	Bits int
	// Rand is the entropy source. Nil means crypto/rand.Reader.
	Rand io.Reader
}

func (e Ephemeral) Generate() (*KeyPair, error) {
	bits := e.Bits
	if bits == 0 {
		bits = DefaultBits
	}
	if bits < MinBits {
		return nil, fmt.Errorf("%w: requested %d", ErrKeyTooSmall, bits)
	}
	r := e.Rand
	if r == nil {
		r = rand.Reader
	}
	key, err := rsa.GenerateKey(r, bits)
	if err != nil {
		return nil, fmt.Errorf("keys: generate rsa key: %w", err)
	}
	return NewKeyPair(key)
}

// Static always returns the same key.
type Static struct {
	Key *rsa.PrivateKey
}

func (s Static) Generate() (*KeyPair, error) {
	return NewKeyPair(s.Key)
}

// FileProvider loads a PEM-encoded private key from Path.
//
// If the file does not exist and Create is set, a new key is generated with
// Ephemeral{Bits: Bits} and written to Path (0600) before being returned.
type FileProvider struct {
	Path   string
	Create bool
	Bits   int
}

func (f FileProvider) Generate() (*KeyPair, error) {
	if f.Path == "" {
		return nil, errors.New("keys: empty key file path")
	}
	key, err := LoadPEMFile(f.Path)
	if err == nil {
		return NewKeyPair(key)
	}
	if !errors.Is(err, ErrKeyNotFound) || !f.Create {
		return nil, err
	}

	kp, err := Ephemeral{Bits: f.Bits}.Generate()
	if err != nil {
		return nil, err
	}
	pemBytes, err := EncodePEM(kp.Private)
	if err != nil {
		return nil, err
	}
	if err := writeKeyFile(f.Path, pemBytes, false); err != nil {
		if os.IsExist(err) {
			// Lost a race with another process creating the same key; use theirs.
			key, lerr := LoadPEMFile(f.Path)
			if lerr != nil {
				return nil, lerr
			}
			return NewKeyPair(key)
		}
		return nil, err
	}
	return kp, nil
}
