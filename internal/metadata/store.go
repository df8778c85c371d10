// Package metadata loads the semantic schema snapshot the resolver works
// against. Snapshots are produced upstream and published either to Redis or
// to a file; this package only reads them.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"nlq-resolver/internal/models"
)

var (
	ErrSnapshotNotFound = errors.New("metadata snapshot not found")
	ErrInvalidSnapshot  = errors.New("invalid metadata snapshot")
)

// Store hands out the current snapshot. Callers must not mutate it.
type Store interface {
	Load(ctx context.Context) (*models.SemanticMetadata, error)
}

// Format names a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Decode parses a snapshot. An empty format sniffs the payload: a leading
// brace means JSON, anything else is read as YAML.
func Decode(data []byte, format Format) (*models.SemanticMetadata, error) {
	if format == "" {
		format = FormatYAML
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = FormatJSON
		}
	}

	var md models.SemanticMetadata
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &md)
	case FormatYAML:
		err = yaml.Unmarshal(data, &md)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidSnapshot, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := Validate(&md); err != nil {
		return nil, err
	}
	return &md, nil
}

// Validate checks the structural rules every consumer relies on: named
// tables and columns, no duplicate table names, and relationships that point
// at known columns.
func Validate(md *models.SemanticMetadata) error {
	if md == nil || len(md.Tables) == 0 {
		return fmt.Errorf("%w: no tables", ErrInvalidSnapshot)
	}
	seen := make(map[string]struct{}, len(md.Tables))
	for _, t := range md.Tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("%w: table without a name", ErrInvalidSnapshot)
		}
		key := strings.ToLower(t.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate table %s", ErrInvalidSnapshot, t.Name)
		}
		seen[key] = struct{}{}
		for _, c := range t.Columns {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("%w: column without a name in %s", ErrInvalidSnapshot, t.Name)
			}
		}
	}
	for _, r := range md.Relationships {
		if !md.HasColumn(r.FromTable, r.FromColumn) || !md.HasColumn(r.ToTable, r.ToColumn) {
			return fmt.Errorf("%w: relationship %s.%s -> %s.%s references an unknown column",
				ErrInvalidSnapshot, r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		}
	}
	return nil
}
