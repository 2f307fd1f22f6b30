package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store"
)

func (s *Service) ListStaff(ctx context.Context) ([]domain.UserAccount, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Password = ""
	}
	return users, nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.UserAccount, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return domain.UserAccount{}, err
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Username == "" || len(req.Password) < 6 {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if req.Role == "" {
		req.Role = domain.RoleStaff
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleStaff {
		return domain.UserAccount{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}

	user := domain.UserAccount{
		Username: req.Username,
		Password: string(hash),
		Role:     req.Role,
		Active:   true,
		Detail:   req.Detail,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}

	created, err := s.repo.GetUser(ctx, req.Username)
	if err != nil {
		return domain.UserAccount{}, err
	}
	created.Password = ""

	s.logAudit(ctx, "staff_create", "user", created.Username, fmt.Sprintf("role=%s", created.Role))
	return *created, nil
}

func (s *Service) UpdateStaffCommission(ctx context.Context, username string, req domain.StaffCommissionUpdateRequest) (domain.UserAccount, error) {
	if _, err := RequireAdmin(ctx); err != nil {
		return domain.UserAccount{}, err
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return domain.UserAccount{}, store.ErrInvalidInput
	}
	if req.CommissionRate.IsNegative() {
		return domain.UserAccount{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateUserCommission(ctx, username, req.CommissionRate)
	if err != nil {
		return domain.UserAccount{}, err
	}
	updated.Password = ""

	s.logAudit(ctx, "staff_commission_update", "user", username, fmt.Sprintf("rate=%s", req.CommissionRate))
	return *updated, nil
}

func (s *Service) DeleteStaff(ctx context.Context, username string) error {
	actor, err := RequireAdmin(ctx)
	if err != nil {
		return err
	}

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return store.ErrInvalidInput
	}
	if username == actor.Username {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteUser(ctx, username); err != nil {
		return err
	}

	s.logAudit(ctx, "staff_delete", "user", username, "")
	return nil
}

// ResetOperationalData wipes sales, movements, settlements and audit history
// while keeping the catalog, accounts and settings.
func (s *Service) ResetOperationalData(ctx context.Context) error {
	if _, err := RequireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.ResetOperationalData(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "operational_data_reset", "database", "", "")
	return nil
}
