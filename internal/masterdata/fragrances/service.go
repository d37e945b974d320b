package fragrances

import (
	"context"

	"github.com/essentia-erp/essentia-erp/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Fragrance, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Fragrance, error) {
	if id <= 0 {
		return Fragrance{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, fragrance Fragrance) (Fragrance, error) {
	if err := s.validate(fragrance); err != nil {
		return Fragrance{}, err
	}
	return s.repo.Create(ctx, fragrance)
}

func (s *Service) Update(ctx context.Context, id int64, fragrance Fragrance) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(fragrance); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, fragrance)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
