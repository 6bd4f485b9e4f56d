// Package codec turns documents into stored payloads and back.
//
// A Codec is built once per store and never changes afterwards. It fixes the
// serialization conventions for the store's lifetime: encoding/json with
// field names as declared, []byte as base64, and time.Time as RFC 3339.
// Mixing conventions across writes would break decoding, so there is no way
// to change them on a live Codec.
//
// # Envelope encryption
//
// When a secret is configured, encoded JSON is sealed with AES-256-GCM:
//
//	"dse1" || nonce (12 bytes) || ciphertext+tag
//
// The AES key is derived from the secret with HKDF-SHA-256. The nonce is
// random per write. Opening with the wrong secret, or a corrupted payload,
// fails with a KindEncryption error.
//
// # Filter hashing
//
// HashAttribute produces the keyed digest used by hashed filter mode:
// HMAC-SHA-256 over the NFC-normalized text "key=value", under a second key
// derived from the same secret. Equal attributes always hash equally within
// one secret, so stored digests can be matched without storing cleartext.
package codec
