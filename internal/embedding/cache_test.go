package embedding

import (
	"context"
	"sync"
	"testing"
)

// countingEncoder records every text it is asked to encode.
type countingEncoder struct {
	*HashEncoder
	mu    sync.Mutex
	calls int
	texts []string
}

func newCountingEncoder(dims int) *countingEncoder {
	return &countingEncoder{HashEncoder: NewHashEncoder(dims)}
}

func (c *countingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.texts = append(c.texts, texts...)
	c.mu.Unlock()
	return c.HashEncoder.Encode(ctx, texts)
}

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	// a is now most recent, so c evicts b
	c.Get("a")
	c.Set("c", []float32{6})
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d", c.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(1)
	src := []float32{1, 2}
	c.Set("k", src)
	src[0] = 9
	v, _ := c.Get("k")
	v[1] = 7
	again, _ := c.Get("k")
	if again[0] != 1 || again[1] != 2 {
		t.Errorf("cache entry was mutated: %v", again)
	}
}

func TestCachedEncoder_EncodesOnlyMisses(t *testing.T) {
	inner := newCountingEncoder(32)
	enc := NewCachedEncoder(inner, 10)
	ctx := context.Background()

	first, err := enc.Encode(ctx, []string{"alpha", "beta"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := enc.Encode(ctx, []string{"beta", "gamma", "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("calls=%d, want 2", inner.calls)
	}
	if len(inner.texts) != 3 || inner.texts[2] != "gamma" {
		t.Errorf("encoded texts: %v", inner.texts)
	}
	for i := range first[0] {
		if first[0][i] != second[2][i] || first[1][i] != second[0][i] {
			t.Fatal("cached vectors should be returned in input order")
		}
	}
	if _, err := enc.Encode(ctx, []string{"alpha"}); err != nil || inner.calls != 2 {
		t.Errorf("all-hit call should not reach the encoder (calls=%d)", inner.calls)
	}
	if enc.ModelName() != HashModelName {
		t.Errorf("model name should pass through: %s", enc.ModelName())
	}
}
