// Package crx builds signed extension packages in the CRX3 container format.
//
// A container is a fixed prefix, a protobuf header and a ZIP payload:
//
//	"Cr24" | uint32le(3) | uint32le(len(header)) | header | archive
//
// The header carries one RSA proof (public key and signature) and the
// serialized SignedData message, which holds the 16-byte container id
// (the first half of SHA-256 over the DER public key). The signature is
// RSASSA-PKCS1-v1_5 with SHA-256 over a domain-separated digest:
//
//	SHA-256("CRX3 SignedData\x00" | uint32le(len(signed)) | signed | archive)
//
// Package is the one-call entry point. Packager exposes the pipeline with a
// pluggable key provider, archiver and logger. Parse and Container.Verify
// read back containers produced here.
package crx
