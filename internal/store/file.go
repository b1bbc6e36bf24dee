// Package store persists the ledger as a single JSON document.
package store

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"

	"github.com/seafoodstudios/equacks/internal/models"
)

// Store is the durable home of the full ledger document. Load and
// Replace are whole-document operations; callers serialize access
// through the gate.
type Store interface {
	Load(ctx context.Context) (models.Ledger, error)
	Replace(ctx context.Context, ledger models.Ledger) error
}

// FileStore keeps the ledger in one JSON file. Replace writes a
// temporary file in the same directory and renames it over the
// canonical path, so a reader or a crash can never observe a partial
// document.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the ledger document. A missing file is an empty ledger.
func (s *FileStore) Load(ctx context.Context) (models.Ledger, error) {
	buf, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.Ledger{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading ledger %s", s.path)
	}

	ledger := models.Ledger{}
	if err := json.Unmarshal(buf, &ledger); err != nil {
		return nil, errors.Wrapf(err, "parsing ledger %s", s.path)
	}
	return ledger, nil
}

// Replace durably persists the full ledger as a unit.
func (s *FileStore) Replace(ctx context.Context, ledger models.Ledger) error {
	buf, err := json.Marshal(ledger)
	if err != nil {
		return errors.Wrap(err, "encoding ledger")
	}
	if err := renameio.WriteFile(s.path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "replacing ledger %s", s.path)
	}
	return nil
}
