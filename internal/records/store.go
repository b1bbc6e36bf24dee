// Package records implements the receipt record service: an
// append-only mapping of generated id -> free-text record, write-once
// per id and publicly readable by id. It keeps its own document and
// lock, with the same atomic-replace discipline as the ledger.
package records

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/renameio"
	"github.com/pkg/errors"
)

// Store persists the record document as one JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	buf, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading records %s", s.path)
	}

	db := map[string]string{}
	if err := json.Unmarshal(buf, &db); err != nil {
		return nil, errors.Wrapf(err, "parsing records %s", s.path)
	}
	return db, nil
}

func (s *Store) Replace(ctx context.Context, db map[string]string) error {
	buf, err := json.Marshal(db)
	if err != nil {
		return errors.Wrap(err, "encoding records")
	}
	if err := renameio.WriteFile(s.path, buf, 0o644); err != nil {
		return errors.Wrapf(err, "replacing records %s", s.path)
	}
	return nil
}
