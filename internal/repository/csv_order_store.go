package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
)

// CSVOrderStore appends order rows to a flat file. The file is opened per
// append so that downstream jobs may rotate it between writes.
type CSVOrderStore struct {
	mu   sync.Mutex
	path string
}

// NewCSVOrderStore creates the parent directory of path.
func NewCSVOrderStore(path string) (*CSVOrderStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &CSVOrderStore{path: path}, nil
}

// Path returns the output file.
func (s *CSVOrderStore) Path() string { return s.path }

// Append writes e, preceded by the header when the file is new or empty.
func (s *CSVOrderStore) Append(_ context.Context, e *models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write(models.CSVHeader); err != nil {
			f.Close()
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(e.CSVRecord()); err != nil {
		f.Close()
		return fmt.Errorf("write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *CSVOrderStore) Close() error { return nil }

var _ repository.OrderStore = (*CSVOrderStore)(nil)
