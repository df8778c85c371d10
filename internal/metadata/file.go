package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nlq-resolver/internal/models"
)

// FileStore reads a snapshot from disk on every Load.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (*models.SemanticMetadata, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.path)
		}
		return nil, fmt.Errorf("read metadata file: %w", err)
	}

	var format Format
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".json":
		format = FormatJSON
	case ".yaml", ".yml":
		format = FormatYAML
	}
	return Decode(data, format)
}
