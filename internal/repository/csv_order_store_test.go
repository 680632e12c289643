package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
)

func order(store, price string) *models.OrderEvent {
	return &models.OrderEvent{StoreID: store, TotalPrice: decimal.RequireFromString(price)}
}

func TestCSVOrderStoreWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "consumed_orders.csv")
	s, err := NewCSVOrderStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, e := range []*models.OrderEvent{order("s1", "1000"), order("s2", "2500.50"), order("s1", "0")} {
		if err := s.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "storeId,totalPrice\ns1,1000\ns2,2500.5\ns1,0\n"
	if string(b) != want {
		t.Fatalf("unexpected file:\n%s", b)
	}
}

func TestCSVOrderStoreAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte("storeId,totalPrice\ns0,1\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s, _ := NewCSVOrderStore(path)
	if err := s.Append(context.Background(), order("s1", "1000")); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, _ := os.ReadFile(path)
	if strings.Count(string(b), "storeId,totalPrice") != 1 || !strings.HasSuffix(string(b), "s1,1000\n") {
		t.Fatalf("unexpected file:\n%s", b)
	}
}

func TestCSVOrderStoreQuotesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	s, _ := NewCSVOrderStore(path)
	_ = s.Append(context.Background(), order("store, north", "10"))
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "\"store, north\",10") {
		t.Fatalf("expected quoted store id, got:\n%s", b)
	}
}

type recordedExec struct {
	query string
	args  []any
	err   error
}

func (r *recordedExec) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	r.query, r.args = q, args
	return nil, r.err
}

func TestClickHouseOrderStoreInsert(t *testing.T) {
	ex := &recordedExec{}
	s := newClickHouseOrderStore(ex, "orders.consumed_orders")
	s.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	e := order("s1", "1000")
	e.Partition, e.Offset = 2, 42
	if err := s.Append(context.Background(), e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.HasPrefix(ex.query, "INSERT INTO orders.consumed_orders ") {
		t.Fatalf("unexpected query %q", ex.query)
	}
	if len(ex.args) != 5 || ex.args[1] != "s1" || ex.args[3] != int32(2) || ex.args[4] != int64(42) {
		t.Fatalf("unexpected args %v", ex.args)
	}

	ex.err = errors.New("connection reset")
	if err := s.Append(context.Background(), e); err == nil {
		t.Fatalf("expected insert error")
	}
}

type failingStore struct{ appends int }

func (f *failingStore) Append(context.Context, *models.OrderEvent) error {
	f.appends++
	return errors.New("mirror down")
}
func (f *failingStore) Close() error { return nil }

func TestMirrorOrderStoreIgnoresMirrorErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	primary, _ := NewCSVOrderStore(path)
	mirror := &failingStore{}
	s := NewMirrorOrderStore(primary, nil, mirror)

	if err := s.Append(context.Background(), order("s1", "1")); err != nil {
		t.Fatalf("mirror failure must not fail append: %v", err)
	}
	if mirror.appends != 1 {
		t.Fatalf("mirror not called")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
