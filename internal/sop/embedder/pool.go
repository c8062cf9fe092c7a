package embedder

import "math"

// meanPool averages the hidden states of each sample over its unmasked
// tokens. hidden is [size x seqLen x dim], mask is [size x seqLen]; the
// result is one dim-length vector per sample.
func meanPool(hidden []float32, mask []int64, size, seqLen, dim int64) [][]float32 {
	out := make([][]float32, size)
	for b := range size {
		vec := make([]float32, dim)
		var n float32
		for s := range seqLen {
			if mask[b*seqLen+s] != 1 {
				continue
			}
			n++
			tok := hidden[(b*seqLen+s)*dim : (b*seqLen+s+1)*dim]
			for d, h := range tok {
				vec[d] += h
			}
		}
		if n > 0 {
			for d := range vec {
				vec[d] /= n
			}
		}
		out[b] = vec
	}
	return out
}

// normalize scales vec to unit length in place. Zero vectors are left alone.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
