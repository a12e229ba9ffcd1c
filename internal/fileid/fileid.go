// Package fileid derives document IDs. Uploads and raw text get random IDs; files ingested
// from disk get a name-based ID so re-ingesting the same path updates the same document.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

// namespace scopes path-derived IDs so they never collide with IDs from other name spaces.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ragkb:file"))

// NewDocID returns a random document ID.
func NewDocID() string {
	return uuid.NewString()
}

// FileDocID returns a stable document ID for path. The path is cleaned first, so
// "/a/b", "/a/b/" and "/a/./b" share one ID.
func FileDocID(path string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.Clean(path))).String()
}

// IsDocID reports whether id is a well-formed document ID.
func IsDocID(id string) bool {
	return uuid.Validate(id) == nil
}
