package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashModelName identifies the HashEncoder feature scheme. Changing the scheme requires a new name.
const HashModelName = "hash-trigram-v1"

// HashEncoder embeds text by signed feature hashing of character trigrams of each word.
// It needs no model file and gives useful lexical similarity for small corpora.
type HashEncoder struct {
	dimensions int
}

// NewHashEncoder returns a HashEncoder with the given dimension (default 384).
func NewHashEncoder(dimensions int) *HashEncoder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEncoder{dimensions: dimensions}
}

// Encode returns L2-normalized trigram feature vectors.
func (e *HashEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashEncoder) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	for _, word := range hashWords(text) {
		padded := []rune("#" + word + "#")
		for j := 0; j+3 <= len(padded); j++ {
			h := fnv.New64a()
			_, _ = h.Write([]byte(string(padded[j : j+3])))
			sum := h.Sum64()
			slot := int(sum % uint64(e.dimensions))
			if sum&(1<<63) != 0 {
				vec[slot]--
			} else {
				vec[slot]++
			}
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) * inv)
		}
	}
	return vec
}

// hashWords lowercases text and splits it into runs of letters and digits.
func hashWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Dimensions returns the embedding dimension.
func (e *HashEncoder) Dimensions() int {
	return e.dimensions
}

// ModelName returns HashModelName.
func (e *HashEncoder) ModelName() string {
	return HashModelName
}

// Close is a no-op.
func (e *HashEncoder) Close() error {
	return nil
}
