package service

import (
	"context"
	"strings"
	"time"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
)

// normalizeRange validates a from/to date pair. Both default to today and the
// range is inclusive on both ends.
func normalizeRange(from, to string) (string, string, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	today := time.Now().UTC().Format(domain.DateFormat)
	if from == "" {
		from = today
	}
	if to == "" {
		to = today
	}
	if _, err := time.Parse(domain.DateFormat, from); err != nil {
		return "", "", store.ErrInvalidInput
	}
	if _, err := time.Parse(domain.DateFormat, to); err != nil {
		return "", "", store.ErrInvalidInput
	}
	if from > to {
		return "", "", store.ErrInvalidInput
	}
	return from, to, nil
}

func (s *Service) SalesSummary(ctx context.Context, from, to string) (domain.SalesSummary, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary, err := s.repo.SalesSummary(ctx, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return *summary, nil
}

func (s *Service) TopProducts(ctx context.Context, from, to string) ([]domain.ProductSales, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.TopProducts(ctx, from, to, 10)
}

func (s *Service) SalesByStaff(ctx context.Context, from, to string) ([]domain.StaffSales, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.SalesByStaff(ctx, from, to)
}

func (s *Service) SalesByStaffProduct(ctx context.Context, from, to string) ([]domain.StaffProductSales, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.SalesByStaffProduct(ctx, from, to)
}
