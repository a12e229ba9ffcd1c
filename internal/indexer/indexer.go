package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/extract"
	"github.com/hyperjump/ragkb/internal/fileid"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vectorstore"
	"go.uber.org/zap"
)

// ErrUnsupportedUpload is returned by IndexUpload for file types uploads do not accept.
var ErrUnsupportedUpload = errors.New("unsupported file type")

// UploadExtensions are the file types accepted by IndexUpload.
var UploadExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// Indexer ingests documents: it records them in storage and appends their chunks to the
// vector store. Mutations are serialized so that a rebuild never misses a concurrent add.
type Indexer struct {
	storage   storage.Storage
	store     *vectorstore.Store
	chunker   *Chunker
	extractor *extract.Extractor
	uploadDir string
	logger    *zap.Logger

	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file indexed, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithUploadDir sets the directory uploaded files are kept in.
func WithUploadDir(dir string) IndexerOption {
	return func(idx *Indexer) { idx.uploadDir = dir }
}

// NewIndexer creates an indexer. Files are read with extract.NewExtractor.
func NewIndexer(st storage.Storage, vs *vectorstore.Store, cfg config.ChunkingConfig, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage:   st,
		store:     vs,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.logger == nil {
		idx.logger = zap.NewNop()
	}
	return idx
}

// IndexText chunks input.Content and indexes it as one document. A missing ID gets a random one;
// an existing ID replaces that document.
func (idx *Indexer) IndexText(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	if input.ID == "" {
		input.ID = fileid.NewDocID()
	}
	if strings.TrimSpace(input.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", vectorstore.ErrValidation)
	}
	doc := &models.Document{
		ID:       input.ID,
		Filename: input.Filename,
		FilePath: input.FilePath,
		Status:   models.StatusProcessing,
	}
	if err := idx.index(ctx, doc, input.Content); err != nil {
		return nil, err
	}
	return doc, nil
}

// index chunks text and writes doc and its chunks to storage and the vector store.
func (idx *Indexer) index(ctx context.Context, doc *models.Document, text string) error {
	chunks := idx.chunker.Chunk(Preprocess(text))
	if len(chunks) == 0 {
		return fmt.Errorf("%w: %s", extract.ErrNoText, doc.Filename)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	_, err := idx.storage.GetDocument(ctx, doc.ID)
	replacing := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("look up document: %w", err)
	}

	doc.Status = models.StatusProcessed
	if replacing {
		if err := idx.storage.SaveDocument(ctx, doc, chunks); err != nil {
			return fmt.Errorf("failed to store document: %w", err)
		}
		if err := idx.rebuildLocked(ctx); err != nil {
			return err
		}
	} else {
		texts := make([]string, len(chunks))
		metas := make([]models.Metadata, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
			metas[i] = models.Metadata{DocID: doc.ID, ChunkID: c.SequenceID, Source: doc.Filename, FilePath: doc.FilePath}
		}
		if err := idx.store.Add(ctx, texts, metas); err != nil {
			return fmt.Errorf("failed to index vectors: %w", err)
		}
		if err := idx.storage.SaveDocument(ctx, doc, chunks); err != nil {
			// The vectors are already in; bring the index back in line with storage.
			if rerr := idx.rebuildLocked(ctx); rerr != nil {
				idx.logger.Error("failed to reconcile vector index", zap.Error(rerr))
			}
			return fmt.Errorf("failed to store document: %w", err)
		}
	}
	idx.logger.Debug("indexer document indexed",
		zap.String("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", len(chunks)),
		zap.Bool("replaced", replacing))
	return nil
}

// IndexFile extracts and indexes the file at path. The document ID is derived from the absolute
// path so re-indexing updates the same document. If allowedExts is non-empty the file's extension
// must be in it (case-insensitive). Files already indexed with the same mtime and size are skipped
// and their existing document is returned.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (*models.Document, error) {
	idx.logger.Debug("indexer indexing file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := fileid.FileDocID(absPath)
	if doc, err := idx.storage.GetDocument(ctx, docID); err == nil && unchanged(doc, absPath, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return doc, nil
	}
	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	doc := &models.Document{
		ID:          docID,
		Filename:    filepath.Base(absPath),
		FilePath:    absPath,
		Status:      models.StatusProcessing,
		SourceMtime: info.ModTime().UnixNano(),
		SourceSize:  info.Size(),
	}
	if err := idx.index(ctx, doc, text); err != nil {
		return nil, err
	}
	idx.logger.Debug("indexer file indexed", zap.String("path", absPath), zap.String("doc_id", docID))
	return doc, nil
}

func unchanged(doc *models.Document, absPath string, info os.FileInfo) bool {
	return doc.FilePath == absPath &&
		doc.SourceMtime == info.ModTime().UnixNano() &&
		doc.SourceSize == info.Size()
}

// IndexDirectory walks dir and indexes each regular file whose extension is in allowedExts
// (all files when empty). recursive controls descent into subdirectories. It returns the
// number of files indexed and the first error encountered.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only index regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, indexErr := idx.IndexFile(ctx, path, allowedExts); indexErr != nil {
			return fmt.Errorf("%s: %w", path, indexErr)
		}
		n++
		return nil
	})
	return n, err
}

// IndexUpload stores an uploaded file as "<id>_<filename>" in the upload directory and indexes it.
// The stored copy is removed again when indexing fails.
func (idx *Indexer) IndexUpload(ctx context.Context, filename string, r io.Reader) (*models.Document, error) {
	filename = filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(filename))
	if !extensionAllowed(ext, UploadExtensions) {
		return nil, fmt.Errorf("%w %q; supported: %s", ErrUnsupportedUpload, ext, strings.Join(UploadExtensions, ", "))
	}
	if idx.uploadDir == "" {
		return nil, errors.New("upload directory is not configured")
	}
	if err := os.MkdirAll(idx.uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	docID := fileid.NewDocID()
	path := filepath.Join(idx.uploadDir, docID+"_"+filename)
	if err := writeFile(path, r); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	text, err := idx.extractor.Extract(path)
	if err == nil {
		doc := &models.Document{ID: docID, Filename: filename, FilePath: path, Status: models.StatusProcessing}
		if err = idx.index(ctx, doc, text); err == nil {
			idx.logger.Info("document uploaded", zap.String("doc_id", docID), zap.String("filename", filename), zap.Int("chunks", doc.ChunkCount))
			return doc, nil
		}
	}
	if rmErr := os.Remove(path); rmErr != nil {
		idx.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(rmErr))
	}
	return nil, err
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// DeleteDocument removes a document from storage, rebuilds the vector index from the remaining
// chunks and deletes the document's uploaded files. It returns storage.ErrNotFound for unknown IDs.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) (*models.Document, error) {
	idx.logger.Debug("indexer deleting document", zap.String("id", id))
	idx.mu.Lock()
	defer idx.mu.Unlock()

	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	if err := idx.rebuildLocked(ctx); err != nil {
		return nil, err
	}
	idx.removeUploads(id)
	idx.logger.Debug("indexer document deleted", zap.String("id", id))
	return doc, nil
}

// RemoveFile deletes the document ingested from path, if any.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	_, err = idx.DeleteDocument(ctx, fileid.FileDocID(absPath))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (idx *Indexer) removeUploads(id string) {
	if idx.uploadDir == "" || !fileid.IsDocID(id) {
		return
	}
	matches, err := filepath.Glob(filepath.Join(idx.uploadDir, id+"_*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			idx.logger.Warn("failed to remove upload", zap.String("path", m), zap.Error(err))
		}
	}
}

// Reindex re-embeds every stored chunk into a fresh vector index, e.g. after changing the
// embedding model. It returns the number of chunks indexed.
func (idx *Indexer) Reindex(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.rebuildLocked(ctx); err != nil {
		return 0, err
	}
	return idx.store.Size(), nil
}

func (idx *Indexer) rebuildLocked(ctx context.Context) error {
	chunks, err := idx.storage.ListAllChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chunks: %w", err)
	}
	texts := make([]string, len(chunks))
	metas := make([]models.Metadata, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		metas[i] = c.Metadata()
	}
	if err := idx.store.Rebuild(ctx, texts, metas); err != nil {
		return fmt.Errorf("failed to rebuild vector index: %w", err)
	}
	return nil
}

// Clear removes every document, its uploaded files and the whole vector index.
func (idx *Indexer) Clear(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	docs, err := idx.storage.ListDocuments(ctx, 0, 0)
	if err != nil {
		return err
	}
	if err := idx.storage.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	for _, d := range docs {
		idx.removeUploads(d.ID)
	}
	if err := idx.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear vector index: %w", err)
	}
	idx.logger.Info("knowledge base cleared", zap.Int("documents", len(docs)))
	return nil
}

// DocumentStats returns chunk statistics for one document.
func (idx *Indexer) DocumentStats(ctx context.Context, id string) (models.DocumentStats, error) {
	if _, err := idx.storage.GetDocument(ctx, id); err != nil {
		return models.DocumentStats{}, err
	}
	stored, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return models.DocumentStats{}, err
	}
	chunks := make([]models.Chunk, len(stored))
	for i, c := range stored {
		chunks[i] = c.Chunk
	}
	return models.ComputeDocumentStats(chunks), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
