// Package keys provides the signing keys used to build containers.
//
// A Provider hands the packaging pipeline one RSA key pair per build. The
// default provider (Ephemeral) generates a fresh key every time, which gives
// every build a new extension id. FileProvider and KeyStore keep a key on
// disk so repeated builds of the same extension share an id.
//
// API stability:
//
// Stable:
//   - Provider, KeyPair, NewKeyPair, ExportPublicKey.
//
// Experimental:
//   - Filesystem-backed key storage (KeyStore, FileProvider).
package keys
