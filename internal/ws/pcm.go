package ws

import (
	"encoding/binary"
	"math"
)

// pcmToBinary encodes float32 PCM as a little-endian byte frame, the wire
// format for both directions of the WebSocket audio stream. Raw binary
// keeps the websocket frame free of any container/codec negotiation,
// matching spec.md's "no custom protocol" for the HTTPS/transfer layer.
func pcmToBinary(pcm []float32) []byte {
	buf := make([]byte, 4*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

func pcmFromBinary(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
