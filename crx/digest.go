package crx

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
)

// SignedDataContext prefixes every signed digest so a CRX3 signature cannot
// be replayed as a signature for another protocol that hashes with SHA-256.
const SignedDataContext = "CRX3 SignedData\x00"

// archiveChunkSize is the slice size used when feeding the archive to the hash.
const archiveChunkSize = 4096

// Digest is a SHA-256 digest.
type Digest [sha256.Size]byte

// ComputeDigest returns the digest that container signatures cover.
func ComputeDigest(signedHeaderData, archive []byte) Digest {
	return digestChunks(signedHeaderData, archive, archiveChunkSize)
}

func digestChunks(signedHeaderData, archive []byte, chunk int) Digest {
	h := sha256.New()
	_, _ = h.Write([]byte(SignedDataContext))

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(signedHeaderData)))
	_, _ = h.Write(size[:])
	_, _ = h.Write(signedHeaderData)

	if chunk <= 0 {
		chunk = archiveChunkSize
	}
	for off := 0; off < len(archive); off += chunk {
		end := min(off+chunk, len(archive))
		_, _ = h.Write(archive[off:end])
	}

	var d Digest
	h.Sum(d[:0])
	return d
}

// Sign signs the pre-computed digest with RSASSA-PKCS1-v1_5. SHA-256 is
// declared in the DigestInfo; the digest is not hashed again.
func Sign(digest Digest, key *rsa.PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, newError(KindSign, "CRX-SIGN-001", "missing private key")
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, wrapError(KindSign, "CRX-SIGN-002", "rsa pkcs1v15 sign failed", err)
	}
	return sig, nil
}

// VerifyDigest checks sig over digest with pub.
func VerifyDigest(pub *rsa.PublicKey, digest Digest, sig []byte) error {
	if pub == nil {
		return newError(KindVerify, "CRX-VERIFY-001", "missing public key")
	}
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return wrapError(KindVerify, "CRX-VERIFY-002", "signature invalid", err)
	}
	return nil
}
