package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/ragkb/internal/answer"
	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/embedding"
	"github.com/hyperjump/ragkb/internal/indexer"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/search"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vectorstore"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	handler    http.Handler
	storage    storage.Storage
	cfg        *config.Config
	configPath string
}

func newTestEnv(t *testing.T, watch WatchService) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Chunking = config.ChunkingConfig{ChunkSize: 20, ChunkOverlap: 5}

	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	vs, err := vectorstore.New(embedding.NewHashEncoder(1024), vectorstore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vs.Close() })

	idx := indexer.NewIndexer(st, vs, cfg.Chunking, indexer.WithUploadDir(cfg.Storage.UploadDir))
	engine := search.NewEngine(vs, answer.NewSynthesizer(nil, answer.Options{}), cfg.Query, search.WithStorage(st))
	configPath := filepath.Join(dir, "config.yaml")
	srv := NewServer(engine, idx, st, cfg, zap.NewNop(), watch, configPath)
	return &testEnv{handler: srv.Handler(), storage: st, cfg: cfg, configPath: configPath}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			t.Fatal(err)
		}
	}
	return e.do(t, method, path, b, "application/json")
}

func (e *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return e.do(t, http.MethodPost, "/api/v1/upload", buf.Bytes(), mw.FormDataContentType())
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.doJSON(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	out := decode[map[string]interface{}](t, w)
	if out["status"] != "healthy" || out["documents_count"] != float64(0) || out["chunks_count"] != float64(0) {
		t.Errorf("health = %v", out)
	}
}

func TestUploadQueryDelete(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.upload(t, "cats.txt", "Cats are small mammals that purr.")
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	up := decode[models.IngestResponse](t, w)
	if up.Status != "success" || up.ChunksCreated != 1 || up.Filename != "cats.txt" {
		t.Errorf("upload = %+v", up)
	}
	if w := env.upload(t, "dogs.md", "Dogs are loyal mammals that bark."); w.Code != http.StatusOK {
		t.Fatalf("upload status %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "Which animal purrs?", TopK: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("query status %d: %s", w.Code, w.Body.String())
	}
	resp := decode[models.QueryResponse](t, w)
	if len(resp.Sources) != 2 || resp.Sources[0].Source != "cats.txt" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.Answer == "" || resp.Mode != answer.ModeExtractive {
		t.Errorf("resp = %+v", resp)
	}

	w = env.doJSON(t, http.MethodGet, "/api/v1/documents/"+up.DocID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	detail := decode[map[string]interface{}](t, w)
	if detail["filename"] != "cats.txt" || detail["stats"] == nil {
		t.Errorf("detail = %v", detail)
	}

	w = env.doJSON(t, http.MethodDelete, "/api/v1/documents/"+up.DocID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status %d", w.Code)
	}
	msg := decode[map[string]string](t, w)
	if msg["message"] != "Document cats.txt deleted successfully" {
		t.Errorf("message = %q", msg["message"])
	}

	w = env.doJSON(t, http.MethodDelete, "/api/v1/documents/"+up.DocID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status %d, want 404", w.Code)
	}

	w = env.doJSON(t, http.MethodGet, "/api/v1/documents", nil)
	docs := decode[[]models.Document](t, w)
	if len(docs) != 1 || docs[0].Filename != "dogs.md" {
		t.Errorf("documents = %+v", docs)
	}
}

func TestUpload_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)
	tests := []struct {
		name, filename, content string
	}{
		{"unsupported type", "slides.pptx", "data"},
		{"no text", "blank.txt", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.upload(t, tt.filename, tt.content)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400: %s", w.Code, w.Body.String())
			}
			if out := decode[map[string]string](t, w); out["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
	w := env.do(t, http.MethodPost, "/api/v1/upload", []byte("x"), "text/plain")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing file: status %d", w.Code)
	}
}

func TestQuery_EmptyAndInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.doJSON(t, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: "anything"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	resp := decode[models.QueryResponse](t, w)
	if resp.Answer != answer.NoInformationMessage || len(resp.Sources) != 0 {
		t.Errorf("resp = %+v", resp)
	}

	if w := env.doJSON(t, http.MethodPost, "/api/v1/query", models.QueryRequest{Query: ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty query status %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/v1/query", []byte("{"), "application/json"); w.Code != http.StatusBadRequest {
		t.Errorf("bad body status %d, want 400", w.Code)
	}
}

func TestIndexTextStatsAndClear(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.doJSON(t, http.MethodPost, "/api/v1/documents", models.DocumentInput{Filename: "note.txt", Content: "Water boils at 100 degrees."})
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if w := env.doJSON(t, http.MethodPost, "/api/v1/documents", models.DocumentInput{Content: "no name"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing filename status %d, want 400", w.Code)
	}

	stats := decode[search.Stats](t, env.doJSON(t, http.MethodGet, "/api/v1/stats", nil))
	if stats.Documents != 1 || stats.Chunks != 1 || stats.Vector.TotalVectors != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if w := env.doJSON(t, http.MethodDelete, "/api/v1/index", nil); w.Code != http.StatusOK {
		t.Fatalf("clear status %d", w.Code)
	}
	stats = decode[search.Stats](t, env.doJSON(t, http.MethodGet, "/api/v1/stats", nil))
	if stats.Documents != 0 || stats.Vector.TotalVectors != 0 {
		t.Errorf("after clear stats = %+v", stats)
	}
}

func TestListDocuments_BadPaging(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.doJSON(t, http.MethodGet, "/api/v1/documents?limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
	w := env.doJSON(t, http.MethodGet, "/api/v1/documents", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty list body = %q", w.Body.String())
	}
}

func TestWatchDirectories(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	env := newTestEnv(t, mock)

	out := decode[struct {
		Directories []string `json:"directories"`
	}](t, env.doJSON(t, http.MethodGet, "/api/v1/watch/directories", nil))
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: got %v", out.Directories)
	}

	newDir := t.TempDir()
	w := env.doJSON(t, http.MethodPost, "/api/v1/watch/directories", map[string]interface{}{"path": newDir, "sync": false})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status %d: %s", w.Code, w.Body.String())
	}
	saved, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if len(saved.Watch.Directories) != 2 {
		t.Errorf("saved directories = %v", saved.Watch.Directories)
	}

	if w := env.doJSON(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": filepath.Join(newDir, "missing")}); w.Code != http.StatusNotFound {
		t.Errorf("missing dir status %d, want 404", w.Code)
	}
	file := filepath.Join(newDir, "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if w := env.doJSON(t, http.MethodPost, "/api/v1/watch/directories", map[string]string{"path": file}); w.Code != http.StatusBadRequest {
		t.Errorf("file path status %d, want 400", w.Code)
	}

	w = env.doJSON(t, http.MethodDelete, "/api/v1/watch/directories?path="+newDir, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status %d", w.Code)
	}
	if len(mock.dirs) != 1 {
		t.Errorf("after remove: %v", mock.dirs)
	}
}

func TestWatchDirectories_NotEnabled(t *testing.T) {
	env := newTestEnv(t, nil)
	if w := env.doJSON(t, http.MethodGet, "/api/v1/watch/directories", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}
