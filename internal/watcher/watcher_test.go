package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/ragkb/internal/models"
)

// recordingSink records the paths it is asked to ingest or remove.
type recordingSink struct {
	mu      sync.Mutex
	indexed []string
	removed []string
	failOn  string
}

func (s *recordingSink) IndexFile(_ context.Context, path string, _ []string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.HasSuffix(path, s.failOn) {
		return nil, errors.New("boom")
	}
	s.indexed = append(s.indexed, path)
	return &models.Document{ID: "id-" + filepath.Base(path), ChunkCount: 1}, nil
}

func (s *recordingSink) RemoveFile(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return nil
}

func (s *recordingSink) snapshot() (indexed, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.indexed...), append([]string(nil), s.removed...)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, sink Sink, opts Options) *Watcher {
	t.Helper()
	opts.Debounce = 50 * time.Millisecond
	w := New(sink, opts)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	return w
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, &recordingSink{}, Options{Extensions: []string{".txt"}, Recursive: true})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_IngestsAndRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	startWatcher(t, sink, Options{Roots: []string{dir}, Extensions: []string{".txt"}, Recursive: true})

	path := filepath.Join(sub, "f.txt")
	writeFile(t, path, "hello")
	writeFile(t, filepath.Join(sub, "skip.xyz"), "skip")
	if !eventually(t, func() bool { idx, _ := sink.snapshot(); return hasSuffix(idx, "f.txt") }) {
		t.Fatal("expected f.txt to be ingested")
	}
	if idx, _ := sink.snapshot(); hasSuffix(idx, "skip.xyz") {
		t.Error("skip.xyz should not be ingested")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !eventually(t, func() bool { _, rm := sink.snapshot(); return hasSuffix(rm, "f.txt") }) {
		t.Error("expected f.txt to be removed")
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	w := New(sink, Options{Roots: []string{dir}, Debounce: 300 * time.Millisecond})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "burst.md")
	for i := 0; i < 5; i++ {
		writeFile(t, path, strings.Repeat("x", i+1))
	}
	time.Sleep(700 * time.Millisecond)
	idx, _ := sink.snapshot()
	if len(idx) != 1 {
		t.Errorf("expected one ingest after a burst of writes, got %d", len(idx))
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	startWatcher(t, sink, Options{Roots: []string{dir}, Extensions: []string{".txt", ".md"}, Recursive: true})

	nested := filepath.Join(dir, "level1", "level2")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(nested, "deep.txt"), "deep content")
	writeFile(t, filepath.Join(dir, "level1", "doc.md"), "world")

	ok := eventually(t, func() bool {
		idx, _ := sink.snapshot()
		return hasSuffix(idx, "deep.txt") && hasSuffix(idx, "doc.md")
	})
	if !ok {
		idx, _ := sink.snapshot()
		t.Errorf("expected deep.txt and doc.md to be ingested, got %v", idx)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")
	writeFile(t, filepath.Join(dir, "broken.txt"), "fails")
	writeFile(t, filepath.Join(dir, "ignore.xyz"), "x")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(sub, "nested.txt"), "nested")

	sink := &recordingSink{failOn: "broken.txt"}
	w := New(sink, Options{Roots: []string{dir}, Extensions: []string{".txt"}, Recursive: false})
	w.SyncExistingFiles()

	idx, _ := sink.snapshot()
	if len(idx) != 1 || !strings.HasSuffix(idx[0], "a.txt") {
		t.Errorf("expected only a.txt, got %v", idx)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, &recordingSink{}, Options{Roots: []string{root}, Recursive: true})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
