package pyth

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

var accumulatorMagic = []byte("PNAU")

// ExtractVAA returns the Wormhole VAA embedded in an accumulator update.
//
// Layout: magic(4) major(1) minor(1) trailingSize(1) trailing(trailingSize)
// proofType(1) vaaSize(u16 BE) vaa(vaaSize) ...
func ExtractVAA(msg []byte) ([]byte, error) {
	if len(msg) < 7 || !bytes.Equal(msg[:4], accumulatorMagic) {
		return nil, &domain.DecodeError{Schema: "AccumulatorUpdate", Reason: "missing PNAU header"}
	}
	trailing := int(msg[6])
	sizeOff := 7 + trailing + 1
	if len(msg) < sizeOff+2 {
		return nil, &domain.DecodeError{Schema: "AccumulatorUpdate", Offset: sizeOff, Reason: "truncated before vaa size"}
	}
	size := int(binary.BigEndian.Uint16(msg[sizeOff:]))
	start := sizeOff + 2
	if len(msg) < start+size {
		return nil, &domain.DecodeError{
			Schema: "AccumulatorUpdate",
			Offset: start,
			Reason: fmt.Sprintf("vaa of %d bytes exceeds remaining %d", size, len(msg)-start),
		}
	}
	return msg[start : start+size], nil
}
