package state

import (
	"crypto/ed25519"
	"encoding/base64"
)

// HeaderName is the canonical transport header carrying a base64
// authorization payload. Historical clients disagreed on the header key;
// this constant is the wire contract and the only name this library
// emits or documents.
const HeaderName = "X-Payments-Signature"

// payloadVersion is a reserved marker between state and signature,
// currently always zero.
const payloadVersion = 0x00

// SignatureSize is the length of a detached ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// Sign produces a detached ed25519 signature over the exact encoded state
// bytes. No pre-hashing beyond what ed25519 itself performs.
func Sign(encoded []byte, key ed25519.PrivateKey) []byte {
	return ed25519.Sign(key, encoded)
}

// BuildPayload assembles the transmittable authorization:
// encoded state, the reserved version byte, then the 64-byte signature.
func BuildPayload(encoded, signature []byte) []byte {
	payload := make([]byte, 0, len(encoded)+1+len(signature))
	payload = append(payload, encoded...)
	payload = append(payload, payloadVersion)
	payload = append(payload, signature...)
	return payload
}

// HeaderValue encodes a payload for transport as a header value.
func HeaderValue(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}
