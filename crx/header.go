package crx

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the CRX3 header messages:
//
//	message CrxFileHeader {
//	  repeated AsymmetricKeyProof sha256_with_rsa = 2;
//	  repeated AsymmetricKeyProof sha256_with_ecdsa = 3;
//	  optional bytes signed_header_data = 10000;
//	}
//	message AsymmetricKeyProof {
//	  optional bytes public_key = 1;
//	  optional bytes signature = 2;
//	}
//	message SignedData {
//	  optional bytes crx_id = 1;
//	}
const (
	fieldSHA256WithRSA    protowire.Number = 2
	fieldSHA256WithECDSA  protowire.Number = 3
	fieldSignedHeaderData protowire.Number = 10000

	fieldProofPublicKey protowire.Number = 1
	fieldProofSignature protowire.Number = 2

	fieldCrxID protowire.Number = 1
)

// Proof is one (public key, signature) pair of a signature scheme.
type Proof struct {
	PublicKey []byte
	Signature []byte
}

// Header is the decoded CrxFileHeader.
//
// Only SHA256WithRSA proofs are produced by this package; SHA256WithECDSA is
// kept so decoded headers are not silently truncated.
type Header struct {
	SHA256WithRSA    []Proof
	SHA256WithECDSA  []Proof
	SignedHeaderData []byte
}

// EncodeSignedData returns the canonical encoding of SignedData{crx_id: id}.
func EncodeSignedData(id ID) []byte {
	b := make([]byte, 0, 2+IDSize)
	b = protowire.AppendTag(b, fieldCrxID, protowire.BytesType)
	b = protowire.AppendBytes(b, id[:])
	return b
}

// EncodeHeader returns the canonical encoding of a header with a single
// SHA-256/RSA proof.
func EncodeHeader(publicKey, signature, signedHeaderData []byte) []byte {
	h := Header{
		SHA256WithRSA:    []Proof{{PublicKey: publicKey, Signature: signature}},
		SignedHeaderData: signedHeaderData,
	}
	return h.Marshal()
}

// Marshal encodes h with fields in field-number order. Every present field is
// written even when empty, so re-encoding a decoded header is byte-stable.
func (h *Header) Marshal() []byte {
	var b []byte
	for _, p := range h.SHA256WithRSA {
		b = protowire.AppendTag(b, fieldSHA256WithRSA, protowire.BytesType)
		b = protowire.AppendBytes(b, p.marshal())
	}
	for _, p := range h.SHA256WithECDSA {
		b = protowire.AppendTag(b, fieldSHA256WithECDSA, protowire.BytesType)
		b = protowire.AppendBytes(b, p.marshal())
	}
	b = protowire.AppendTag(b, fieldSignedHeaderData, protowire.BytesType)
	b = protowire.AppendBytes(b, h.SignedHeaderData)
	return b
}

func (p Proof) marshal() []byte {
	b := make([]byte, 0, len(p.PublicKey)+len(p.Signature)+8)
	b = protowire.AppendTag(b, fieldProofPublicKey, protowire.BytesType)
	b = protowire.AppendBytes(b, p.PublicKey)
	b = protowire.AppendTag(b, fieldProofSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, p.Signature)
	return b
}

// DecodeHeader parses a CrxFileHeader. Unknown fields are skipped.
// Returned slices alias b.
func DecodeHeader(b []byte) (*Header, error) {
	h := &Header{}
	err := walkFields(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldSHA256WithRSA, fieldSHA256WithECDSA:
			p, err := decodeProof(v)
			if err != nil {
				return err
			}
			if num == fieldSHA256WithRSA {
				h.SHA256WithRSA = append(h.SHA256WithRSA, p)
			} else {
				h.SHA256WithECDSA = append(h.SHA256WithECDSA, p)
			}
		case fieldSignedHeaderData:
			h.SignedHeaderData = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DecodeSignedData parses SignedData and returns its crx_id.
func DecodeSignedData(b []byte) (ID, error) {
	var (
		id   ID
		seen bool
	)
	err := walkFields(b, func(num protowire.Number, v []byte) error {
		if num != fieldCrxID {
			return nil
		}
		if len(v) != IDSize {
			return newError(KindFormat, "CRX-FMT-202", "crx_id must be 16 bytes")
		}
		copy(id[:], v)
		seen = true
		return nil
	})
	if err != nil {
		return ID{}, err
	}
	if !seen {
		return ID{}, newError(KindFormat, "CRX-FMT-201", "signed header data has no crx_id")
	}
	return id, nil
}

func decodeProof(b []byte) (Proof, error) {
	var p Proof
	err := walkFields(b, func(num protowire.Number, v []byte) error {
		switch num {
		case fieldProofPublicKey:
			p.PublicKey = v
		case fieldProofSignature:
			p.Signature = v
		}
		return nil
	})
	return p, err
}

// walkFields calls fn for every length-delimited field in b and skips fields
// of any other wire type.
func walkFields(b []byte, fn func(num protowire.Number, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wrapError(KindFormat, "CRX-FMT-101", "malformed protobuf tag", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return wrapError(KindFormat, "CRX-FMT-102", "malformed protobuf field", protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return wrapError(KindFormat, "CRX-FMT-103", "malformed length-delimited field", protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(num, v); err != nil {
			return err
		}
	}
	return nil
}
