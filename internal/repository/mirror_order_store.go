package repository

import (
	"context"
	"errors"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// MirrorOrderStore writes to a primary store and best-effort to mirrors.
// Only the primary's error is returned.
type MirrorOrderStore struct {
	primary repository.OrderStore
	mirrors []repository.OrderStore
	log     *logger.Logger
}

func NewMirrorOrderStore(primary repository.OrderStore, l *logger.Logger, mirrors ...repository.OrderStore) *MirrorOrderStore {
	if l == nil {
		l = logger.NewNop()
	}
	return &MirrorOrderStore{primary: primary, mirrors: mirrors, log: l}
}

func (s *MirrorOrderStore) Append(ctx context.Context, e *models.OrderEvent) error {
	err := s.primary.Append(ctx, e)
	for _, m := range s.mirrors {
		if merr := m.Append(ctx, e); merr != nil {
			s.log.Warn("mirror append failed", logger.String("store_id", e.StoreID), logger.Error(merr))
		}
	}
	return err
}

func (s *MirrorOrderStore) Close() error {
	errs := []error{s.primary.Close()}
	for _, m := range s.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

var _ repository.OrderStore = (*MirrorOrderStore)(nil)
