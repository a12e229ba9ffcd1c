package embedding

import (
	"context"
	"math"
	"testing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEncoder_Deterministic(t *testing.T) {
	enc := NewHashEncoder(64)
	ctx := context.Background()
	a, err := enc.Encode(ctx, []string{"Hello, world"})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := enc.Encode(ctx, []string{"hello world"})
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatalf("case/punctuation should not change the embedding at %d", i)
		}
	}
	if math.Abs(dot(a[0], a[0])-1) > 1e-5 {
		t.Errorf("embedding should be unit length, got %f", dot(a[0], a[0]))
	}
}

func TestHashEncoder_EmptyText(t *testing.T) {
	enc := NewHashEncoder(16)
	vecs, err := enc.Encode(context.Background(), []string{""})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 16 {
		t.Fatalf("unexpected shape: %d", len(vecs))
	}
	for _, v := range vecs[0] {
		if v != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashEncoder_LexicalSimilarity(t *testing.T) {
	enc := NewHashEncoder(4096)
	vecs, err := enc.Encode(context.Background(), []string{
		"Which animal purrs?",
		"Cats are small mammals that purr.",
		"Dogs are loyal mammals that bark.",
	})
	if err != nil {
		t.Fatal(err)
	}
	cats, dogs := dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2])
	if cats <= dogs {
		t.Errorf("cats (%f) should score above dogs (%f)", cats, dogs)
	}
}

func TestHashEncoder_Metadata(t *testing.T) {
	enc := NewHashEncoder(0)
	if enc.Dimensions() != 384 {
		t.Errorf("default dimensions: %d", enc.Dimensions())
	}
	if enc.ModelName() != HashModelName {
		t.Errorf("model name: %s", enc.ModelName())
	}
}

func TestHashEncoder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEncoder(8).Encode(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}
