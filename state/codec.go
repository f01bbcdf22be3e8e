// Package state implements the canonical binary encoding of channel state
// and the detached-signature authorization built over it. The provider
// decodes these exact bytes, so the layout must be byte-stable across
// platforms and releases.
package state

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/vitwit/paychan/types"
)

const (
	// spentWidth is the wire width of the cumulative spent amount: a
	// 128-bit little-endian unsigned integer laid out as two 8-byte
	// words, low word first. A single 64-bit word cannot hold
	// atomic-unit amounts at full token-supply scale.
	spentWidth = 16

	maxSpentBits = spentWidth * 8
)

// Encode produces the canonical state bytes for (channelID, spent):
// a 4-byte little-endian length of the id, the raw id bytes, then the
// spent amount as two 8-byte little-endian words (low, high). Identical
// inputs always yield identical bytes.
func Encode(channelID string, spent types.Token) ([]byte, error) {
	if len(channelID) > math.MaxUint32 {
		return nil, &types.Error{
			Code:    types.ErrInvalidPayload,
			Message: "channel id too long to encode",
		}
	}

	amount := spent.Atomic()
	if amount.BitLen() > maxSpentBits {
		return nil, &types.Error{
			Code:    types.ErrInvalidAmount,
			Message: fmt.Sprintf("spent amount %s exceeds %d bits", amount, maxSpentBits),
		}
	}

	buf := make([]byte, 4+len(channelID)+spentWidth)
	binary.LittleEndian.PutUint32(buf, uint32(len(channelID)))
	copy(buf[4:], channelID)

	lo, hi := splitWords(amount)
	binary.LittleEndian.PutUint64(buf[4+len(channelID):], lo)
	binary.LittleEndian.PutUint64(buf[4+len(channelID)+8:], hi)

	return buf, nil
}

// JoinWords reassembles a 128-bit amount from its two little-endian words.
// It is the inverse of the split performed by Encode, used when decoding
// payloads on the verifying side.
func JoinWords(lo, hi uint64) *big.Int {
	v := new(big.Int).SetUint64(hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(lo))
}

func splitWords(v *big.Int) (lo, hi uint64) {
	var word big.Int
	lo = word.And(v, mask64).Uint64()
	hi = word.Rsh(v, 64).Uint64()
	return lo, hi
}

var mask64 = new(big.Int).SetUint64(math.MaxUint64)
