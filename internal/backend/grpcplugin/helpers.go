package grpcplugin

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

func intsToAny(ints []int) []any {
	out := make([]any, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

func stringsToAny(strs []string) []any {
	out := make([]any, len(strs))
	for i, v := range strs {
		out[i] = v
	}
	return out
}

func intListFromValue(v *structpb.Value) []int {
	lv := v.GetListValue()
	if lv == nil {
		return nil
	}
	out := make([]int, len(lv.Values))
	for i, item := range lv.Values {
		out[i] = int(item.GetNumberValue())
	}
	return out
}

func stringListFromValue(v *structpb.Value) []string {
	lv := v.GetListValue()
	if lv == nil {
		return nil
	}
	out := make([]string, len(lv.Values))
	for i, item := range lv.Values {
		out[i] = item.GetStringValue()
	}
	return out
}

// pcmToBase64 encodes float32 PCM as little-endian bytes, base64'd so it
// fits inside a structpb.Struct field alongside the request's other
// scalar parameters.
func pcmToBase64(pcm []float32) string {
	buf := make([]byte, 4*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func pcmFromBase64(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
