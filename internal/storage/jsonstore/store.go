// Package jsonstore implements storage.Store on a single JSON file. It has no
// atomic field updates, so every stock ledger operation reports UNSUPPORTED.
package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/google/uuid"
)

const Name = "json"

type document struct {
	Products []models.Product     `json:"products"`
	Carts    []models.Cart        `json:"carts"`
	Orders   []models.Order       `json:"orders"`
	Users    []models.User        `json:"users"`
	Events   []models.OutboxEvent `json:"events"`
}

func (d *document) clone() (*document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var out document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type file struct {
	mu   sync.Mutex
	path string
	doc  *document
}

// Store serializes all access behind one mutex. A Store handed to an Atomic
// callback works on a private copy that is written back only on success.
type Store struct {
	file *file
	tx   *document
	logg *logger.Logger
}

var _ storage.Store = (*Store)(nil)

// Open loads path, starting from an empty document when the file does not exist yet.
func Open(path string, logg *logger.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("json store path required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	doc := &document{}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read json store: %w", err)
	default:
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("decode json store %s: %w", path, err)
		}
	}
	return &Store{file: &file{path: path, doc: doc}, logg: logg}, nil
}

func (s *Store) Name() string { return Name }

func (s *Store) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.file.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("json store directory: %w", err)
	}
	return nil
}

func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.file.mu.Lock()
	defer s.file.mu.Unlock()

	work, err := s.file.doc.clone()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot json store")
	}
	if err := fn(&Store{file: s.file, tx: work, logg: s.logg}); err != nil {
		return err
	}
	if err := s.file.persist(work); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write json store")
	}
	s.file.doc = work
	return nil
}

func (s *Store) read(fn func(doc *document) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	return fn(s.file.doc)
}

func (s *Store) write(ctx context.Context, fn func(doc *document) error) error {
	return s.Atomic(ctx, func(tx storage.Store) error {
		return fn(tx.(*Store).tx)
	})
}

func (f *file) persist(doc *document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".store-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func unsupported(op string) error {
	return pkgerrors.Unsupported(Name, op)
}

func (s *Store) ReserveStock(context.Context, uuid.UUID, int64) error {
	return unsupported("reserve stock")
}

func (s *Store) TryReserveStock(context.Context, uuid.UUID, int64) error {
	return unsupported("reserve stock")
}

func (s *Store) ReleaseReservedStock(context.Context, uuid.UUID, int64) error {
	return unsupported("release reserved stock")
}

func (s *Store) DecreaseStock(context.Context, uuid.UUID, int64) error {
	return unsupported("decrease stock")
}

func (s *Store) ListReservationSnapshots(context.Context) ([]inventory.Snapshot, error) {
	return nil, unsupported("reservation reconciliation")
}

func (s *Store) SyncReserved(context.Context, uuid.UUID, int64) (bool, error) {
	return false, unsupported("reservation reconciliation")
}

// EmitEvent appends to the file's event log; nothing publishes it.
func (s *Store) EmitEvent(ctx context.Context, event outbox.DomainEvent) error {
	row, _, err := outbox.Encode(event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build outbox event")
	}
	return s.write(ctx, func(doc *document) error {
		doc.Events = append(doc.Events, row)
		return nil
	})
}
