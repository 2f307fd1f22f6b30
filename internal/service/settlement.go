package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
)

func normalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().UTC().Format(domain.DateFormat), nil
	}
	t, err := time.Parse(domain.DateFormat, raw)
	if err != nil {
		return "", store.ErrInvalidInput
	}
	return t.Format(domain.DateFormat), nil
}

// SetCashFloat opens (or reopens) the day's settlement. Calling it again
// overwrites the float and recomputes the day's cash sales and expected
// drawer total.
func (s *Service) SetCashFloat(ctx context.Context, req domain.SetCashFloatRequest) (domain.Settlement, error) {
	date, err := normalizeDate(req.Date)
	if err != nil {
		return domain.Settlement{}, err
	}
	if req.CashFloat.IsNegative() {
		return domain.Settlement{}, store.ErrInvalidInput
	}

	settlement, err := s.repo.UpsertCashFloat(ctx, date, req.CashFloat)
	if err != nil {
		return domain.Settlement{}, err
	}

	s.logAudit(ctx, "settlement_float_set", "settlement", date, fmt.Sprintf("float=%s,expected=%s", settlement.CashFloat, settlement.Expected))
	return *settlement, nil
}

// SettleUp records the counted drawer cash. A nonzero discrepancy is
// reported as a warning, never an error: the count is the count.
func (s *Service) SettleUp(ctx context.Context, req domain.SettleUpRequest) (domain.SettlementResponse, error) {
	date, err := normalizeDate(req.Date)
	if err != nil {
		return domain.SettlementResponse{}, err
	}
	if req.ActualCash.IsNegative() {
		return domain.SettlementResponse{}, store.ErrInvalidInput
	}

	settlement, err := s.repo.SettleUp(ctx, date, req.ActualCash)
	if err != nil {
		return domain.SettlementResponse{}, err
	}

	resp := domain.SettlementResponse{Settlement: *settlement}
	if settlement.Discrepancy != nil && !settlement.Discrepancy.IsZero() {
		resp.Warning = fmt.Sprintf("cash discrepancy of %s against expected %s", settlement.Discrepancy, settlement.Expected)
	}

	s.logAudit(ctx, "settlement_settle", "settlement", date, fmt.Sprintf("actual=%s,discrepancy=%s", settlement.Actual, settlement.Discrepancy))
	return resp, nil
}

func (s *Service) GetSettlement(ctx context.Context, date string) (domain.Settlement, error) {
	date, err := normalizeDate(date)
	if err != nil {
		return domain.Settlement{}, err
	}
	settlement, err := s.repo.GetSettlement(ctx, date)
	if err != nil {
		return domain.Settlement{}, err
	}
	return *settlement, nil
}

func (s *Service) ListSettlements(ctx context.Context, from, to string) ([]domain.Settlement, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSettlements(ctx, from, to)
}
