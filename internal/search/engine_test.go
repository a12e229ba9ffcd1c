package search

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/ragkb/internal/answer"
	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/embedding"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vector"
	"github.com/hyperjump/ragkb/internal/vectorstore"
)

type countingEncoder struct {
	*embedding.HashEncoder
	calls int32
}

func (c *countingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.HashEncoder.Encode(ctx, texts)
}

type countingBackend struct {
	calls int
}

func (b *countingBackend) Generate(context.Context, string, string, float32, int) (string, error) {
	b.calls++
	return "generated", nil
}

func (b *countingBackend) Name() string { return "counting" }

var queryCfg = config.QueryConfig{DefaultTopK: 5, MaxTopK: 10}

func newStore(t *testing.T, enc embedding.Encoder) *vectorstore.Store {
	t.Helper()
	s, err := vectorstore.New(enc, vectorstore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestQuery_EmptyIndex(t *testing.T) {
	enc := &countingEncoder{HashEncoder: embedding.NewHashEncoder(64)}
	backend := &countingBackend{}
	engine := NewEngine(newStore(t, enc), answer.NewSynthesizer(backend, answer.DefaultOptions()), queryCfg)

	resp, err := engine.Query(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Answer != answer.NoInformationMessage {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("Sources = %#v, want empty non-nil", resp.Sources)
	}
	if !resp.Empty {
		t.Error("Empty should be set")
	}
	if enc.calls != 0 || backend.calls != 0 {
		t.Errorf("encoder calls = %d, backend calls = %d, want 0", enc.calls, backend.calls)
	}
}

func TestQuery_Extractive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, embedding.NewHashEncoder(4096))
	// Long enough to be truncated in the preview; the repeated sentence keeps it ranked first.
	long := "The sky is blue. Water boils at 100 degrees. Ice melts at 0 degrees. " + strings.Repeat("Ice melts at 0 degrees Celsius. ", 8)
	err := store.Add(ctx,
		[]string{long, "Dogs are loyal mammals that bark."},
		[]models.Metadata{
			{DocID: "d1", ChunkID: 0, Source: "physics.txt"},
			{DocID: "d2", ChunkID: 3, Source: "dogs.txt"},
		})
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(store, answer.NewSynthesizer(nil, answer.Options{}), queryCfg)

	resp, err := engine.Query(ctx, "  At what temperature does ice melt?  ", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != answer.ModeExtractive || resp.Query != "At what temperature does ice melt?" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("Sources = %+v", resp.Sources)
	}
	top := resp.Sources[0]
	if top.Source != "physics.txt" || top.ChunkID != 0 {
		t.Errorf("top source = %+v", top)
	}
	if !strings.HasSuffix(top.ContentPreview, "...") || len([]rune(top.ContentPreview)) != previewLength+3 {
		t.Errorf("preview not truncated: %q", top.ContentPreview)
	}
	if resp.Sources[1].ContentPreview != "Dogs are loyal mammals that bark." {
		t.Errorf("short preview changed: %q", resp.Sources[1].ContentPreview)
	}
	if resp.Sources[0].RelevanceScore <= resp.Sources[1].RelevanceScore {
		t.Errorf("scores not strictly ordered: %+v", resp.Sources)
	}
	if !strings.Contains(resp.Answer, "Ice melts at 0 degrees") || strings.Contains(resp.Answer, "sky is blue") {
		t.Errorf("Answer = %q", resp.Answer)
	}
}

func TestQuery_TopKBounds(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, embedding.NewHashEncoder(64))
	var texts []string
	var metas []models.Metadata
	for i := 0; i < 15; i++ {
		texts = append(texts, "chunk text")
		metas = append(metas, models.Metadata{DocID: "d", ChunkID: i, Source: "s"})
	}
	if err := store.Add(ctx, texts, metas); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(store, answer.NewSynthesizer(nil, answer.Options{}), queryCfg)

	tests := []struct {
		topK, want int
	}{
		{0, 5},
		{3, 3},
		{100, 10},
	}
	for _, tt := range tests {
		resp, err := engine.Query(ctx, "chunk", tt.topK)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Sources) != tt.want {
			t.Errorf("topK %d: got %d sources, want %d", tt.topK, len(resp.Sources), tt.want)
		}
		// equal scores keep insertion order
		for i, s := range resp.Sources {
			if s.ChunkID != i {
				t.Errorf("topK %d: source %d has chunk %d", tt.topK, i, s.ChunkID)
				break
			}
		}
	}
}

func TestQuery_Validation(t *testing.T) {
	engine := NewEngine(newStore(t, embedding.NewHashEncoder(64)), answer.NewSynthesizer(nil, answer.Options{}), queryCfg)
	_, err := engine.Query(context.Background(), "   ", 5)
	if !errors.Is(err, vectorstore.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSources_RoundsScores(t *testing.T) {
	refs := Sources([]models.QueryResult{{Text: "t", Metadata: models.Metadata{Source: "a", ChunkID: 2}, Score: 0.87654}})
	if refs[0].RelevanceScore != 0.877 || refs[0].Source != "a" || refs[0].ChunkID != 2 {
		t.Errorf("refs = %+v", refs)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	doc := &models.Document{ID: "d1", Filename: "a.txt", Status: models.StatusProcessed}
	if err := st.SaveDocument(ctx, doc, []models.Chunk{{Content: "x"}, {Content: "y", SequenceID: 1}}); err != nil {
		t.Fatal(err)
	}
	store := newStore(t, embedding.NewHashEncoder(64))
	engine := NewEngine(store, answer.NewSynthesizer(&countingBackend{}, answer.Options{}), queryCfg,
		WithStorage(st), WithDiskPaths(t.TempDir()))

	stats, err := engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Documents != 1 || stats.Chunks != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Mode != answer.ModeGrounded || stats.Vector.Dimension != 64 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.FAISSAvailable != vector.IsFAISSAvailable() {
		t.Errorf("FAISSAvailable = %v, want %v", stats.FAISSAvailable, vector.IsFAISSAvailable())
	}
}
