package vectorstore

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/hyperjump/ragkb/internal/models"
)

const (
	indexSuffix = ".index"
	metaSuffix  = ".meta"
)

// sideTable is the gob-encoded companion of the similarity blob, aligned by offset.
type sideTable struct {
	Metadata   []models.Metadata
	Texts      []string
	ModelName  string
	Dimension  int
	Generation uint64
}

func (s *Store) indexPath() string { return s.opts.Path + indexSuffix }
func (s *Store) metaPath() string  { return s.opts.Path + metaSuffix }

// persistLocked writes both artifacts. Caller holds s.mu.
func (s *Store) persistLocked() error {
	if s.opts.Path == "" {
		return nil
	}
	if err := s.index.Save(s.indexPath()); err != nil {
		return &PersistenceError{Op: "persist", Path: s.indexPath(), Err: err}
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(sideTable{
		Metadata:   s.metas,
		Texts:      s.texts,
		ModelName:  s.encoder.ModelName(),
		Dimension:  s.encoder.Dimensions(),
		Generation: s.generation,
	})
	if err != nil {
		return &PersistenceError{Op: "persist", Path: s.metaPath(), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.metaPath()), 0755); err != nil {
		return &PersistenceError{Op: "persist", Path: s.metaPath(), Err: err}
	}
	if err := renameio.WriteFile(s.metaPath(), buf.Bytes(), 0644); err != nil {
		return &PersistenceError{Op: "persist", Path: s.metaPath(), Err: err}
	}
	return nil
}

func readSideTable(path string) (*sideTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t sideTable
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode side table: %w", err)
	}
	if len(t.Texts) != len(t.Metadata) {
		return nil, fmt.Errorf("side table has %d texts but %d metadata entries", len(t.Texts), len(t.Metadata))
	}
	return &t, nil
}

// removeArtifacts deletes both artifacts, ignoring ones that do not exist. A failure on one
// does not stop removal of the other.
func (s *Store) removeArtifacts() error {
	if s.opts.Path == "" {
		return nil
	}
	var errs []error
	for _, p := range []string{s.indexPath(), s.metaPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, &PersistenceError{Op: "clear", Path: p, Err: err})
		}
	}
	return errors.Join(errs...)
}

func artifactExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
