// Package verification implements the receiving side of the authorization
// wire format: decoding a transported payload back into channel state and
// checking the detached signature. It exists so the encoding contract in
// the state package is closed end-to-end and exercised from both
// directions.
package verification

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/vitwit/paychan/state"
	"github.com/vitwit/paychan/types"
)

// SignedState is a decoded authorization: the claimed channel state plus
// the sender's detached signature over its canonical encoding.
type SignedState struct {
	ChannelID string
	Spent     types.Token
	Signature []byte
}

// ParseHeader decodes a transport-header value (base64 payload) into a
// SignedState.
func ParseHeader(value string) (*SignedState, error) {
	payload, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, invalid(fmt.Sprintf("header value is not base64: %v", err))
	}
	return ParsePayload(payload)
}

// ParsePayload decodes the raw payload bytes: 4-byte LE id length, id
// bytes, the spent amount as two 8-byte LE words, a zero version byte and
// a 64-byte signature. Truncated input, trailing bytes and a nonzero
// version byte are all INVALID_PAYLOAD.
func ParsePayload(b []byte) (*SignedState, error) {
	if len(b) < 4 {
		return nil, invalid("payload shorter than id length prefix")
	}
	idLen := int64(binary.LittleEndian.Uint32(b))
	rest := b[4:]

	// id + two words + version byte + signature
	want := idLen + 16 + 1 + state.SignatureSize
	if int64(len(rest)) != want {
		return nil, invalid(fmt.Sprintf("payload is %d bytes after prefix, want %d", len(rest), want))
	}

	channelID := string(rest[:idLen])
	rest = rest[idLen:]

	lo := binary.LittleEndian.Uint64(rest)
	hi := binary.LittleEndian.Uint64(rest[8:])
	spent, err := types.FromAtomic(state.JoinWords(lo, hi))
	if err != nil {
		return nil, invalid(fmt.Sprintf("spent amount: %v", err))
	}
	rest = rest[16:]

	if rest[0] != 0x00 {
		return nil, invalid(fmt.Sprintf("unknown payload version %#x", rest[0]))
	}

	return &SignedState{
		ChannelID: channelID,
		Spent:     spent,
		Signature: append([]byte(nil), rest[1:]...),
	}, nil
}

// Verify recomputes the canonical encoding of the claimed state and checks
// the detached signature against the sender's verification key.
func (s *SignedState) Verify(pub ed25519.PublicKey) bool {
	encoded, err := state.Encode(s.ChannelID, s.Spent)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, encoded, s.Signature)
}

func invalid(detail string) error {
	return &types.Error{
		Code:    types.ErrInvalidPayload,
		Message: detail,
	}
}
