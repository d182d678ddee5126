package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/danghm/tellerbot/internal/vntext"
)

// HashEmbedder is a deterministic feature-hashing embedder. It has no
// semantic understanding, but identical or heavily overlapping texts land
// close together, which is enough for development and tests without an
// embedding provider.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, token := range strings.Fields(vntext.Fold(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dim))
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
