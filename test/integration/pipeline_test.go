// Package integration runs the ingest, retrieve and answer pipeline against real storage and
// on-disk index artifacts.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/ragkb/internal/answer"
	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/embedding"
	"github.com/hyperjump/ragkb/internal/indexer"
	"github.com/hyperjump/ragkb/internal/llm"
	"github.com/hyperjump/ragkb/internal/search"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vectorstore"
)

type pipeline struct {
	st     storage.Storage
	store  *vectorstore.Store
	idx    *indexer.Indexer
	engine *search.Engine
}

func openPipeline(t *testing.T, dir string, backend llm.Backend) *pipeline {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "db", "ragkb.db"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := vectorstore.Open(embedding.NewHashEncoder(512), vectorstore.Options{
		Path: filepath.Join(dir, "index", "vector"),
	})
	if err != nil {
		t.Fatal(err)
	}
	synth := answer.NewSynthesizer(backend, answer.DefaultOptions())
	p := &pipeline{
		st:     st,
		store:  store,
		idx:    indexer.NewIndexer(st, store, config.ChunkingConfig{ChunkSize: 40, ChunkOverlap: 8}),
		engine: search.NewEngine(store, synth, config.QueryConfig{DefaultTopK: 5, MaxTopK: 50}, search.WithStorage(st)),
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = st.Close()
	})
	return p
}

func writeDocs(t *testing.T, dir string) {
	t.Helper()
	docs := map[string]string{
		"returns.md":  "# Returns\n\nItems can be returned within 30 days of delivery. Refunds are issued to the original payment method.",
		"shipping.txt": "Standard shipping takes five business days. Express shipping arrives the next day for an extra fee.",
		"warranty.txt": "Every device carries a two year warranty covering manufacturing defects but not accidental damage.",
	}
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPipeline_ingestQueryAndReopen(t *testing.T) {
	dataDir := t.TempDir()
	docsDir := t.TempDir()
	writeDocs(t, docsDir)
	ctx := context.Background()

	p := openPipeline(t, dataDir, nil)
	n, err := p.idx.IndexDirectory(ctx, docsDir, []string{".md", ".txt"}, true)
	if err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}
	if n != 3 {
		t.Fatalf("indexed %d files, want 3", n)
	}

	resp, err := p.engine.Query(ctx, "how long does express shipping take", 3)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != answer.ModeExtractive || resp.Empty {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Sources[0].Source != "shipping.txt" {
		t.Errorf("top source = %q, want shipping.txt", resp.Sources[0].Source)
	}
	before := resp.Sources

	// A second process opening the same artifacts sees the same ranking.
	_ = p.store.Close()
	_ = p.st.Close()
	p2 := openPipeline(t, dataDir, nil)
	if got := p2.store.Size(); got != 3 {
		t.Fatalf("reopened store size = %d, want 3", got)
	}
	resp2, err := p2.engine.Query(ctx, "how long does express shipping take", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp2.Sources) != len(before) {
		t.Fatalf("reopened sources = %d, want %d", len(resp2.Sources), len(before))
	}
	for i := range before {
		if resp2.Sources[i] != before[i] {
			t.Errorf("source %d after reopen = %+v, want %+v", i, resp2.Sources[i], before[i])
		}
	}

	// Deleting a document removes it from retrieval.
	docs, err := p2.st.ListDocuments(ctx, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range docs {
		if d.Filename == "shipping.txt" {
			if _, err := p2.idx.DeleteDocument(ctx, d.ID); err != nil {
				t.Fatal(err)
			}
		}
	}
	resp3, err := p2.engine.Query(ctx, "how long does express shipping take", 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range resp3.Sources {
		if s.Source == "shipping.txt" {
			t.Errorf("deleted document still retrieved: %+v", s)
		}
	}
}

// fakeChatServer answers OpenAI chat completion requests with a fixed reply.
func fakeChatServer(t *testing.T, reply string, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(calls, 1)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) != 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Messages[1].Content, "[Source 1:") {
			http.Error(w, "missing context", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
	}))
}

func TestPipeline_groundedAnswerThroughOpenAICompatibleServer(t *testing.T) {
	var calls int32
	srv := fakeChatServer(t, "  Returns are accepted within 30 days.  ", &calls)
	defer srv.Close()

	docsDir := t.TempDir()
	writeDocs(t, docsDir)
	ctx := context.Background()

	p := openPipeline(t, t.TempDir(), llm.NewOpenAIBackend("test-key", srv.URL+"/v1", "test-model"))
	if _, err := p.idx.IndexDirectory(ctx, docsDir, nil, false); err != nil {
		t.Fatal(err)
	}
	resp, err := p.engine.Query(ctx, "what is the return window", 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Mode != answer.ModeGrounded {
		t.Errorf("mode = %q, want %q", resp.Mode, answer.ModeGrounded)
	}
	if resp.Answer != "Returns are accepted within 30 days." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("backend calls = %d, want 1", calls)
	}
}
