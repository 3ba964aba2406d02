package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
)

type AdminRepository interface {
	CreateTicketType(ctx context.Context, tt domain.TicketType) error
	ListTicketTypes(ctx context.Context) ([]domain.TicketType, error)
}

// AdminService covers the organizer tooling this core needs: creating and
// listing ticket types. The wider back office (venues, reports, dashboards)
// lives elsewhere.
type AdminService struct {
	repo  AdminRepository
	clock clock.Clock
}

func NewAdminService(repo AdminRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateTicketTypeInput struct {
	Name       string
	PriceCents int64
	Total      int
	IsBundle   bool
	BundleSize int
	Visible    bool
	StageGroup string
	StageOrder int
}

func (s *AdminService) CreateTicketType(ctx context.Context, in CreateTicketTypeInput) (domain.TicketType, error) {
	if in.Name == "" {
		return domain.TicketType{}, domain.ErrNameRequired
	}
	if in.Total <= 0 {
		return domain.TicketType{}, domain.ErrInvalidCapacity
	}
	if in.IsBundle && in.BundleSize < 2 {
		return domain.TicketType{}, domain.ErrInvalidBundleSize
	}

	bundleSize := 1
	if in.IsBundle {
		bundleSize = in.BundleSize
	}

	tt := domain.TicketType{
		ID:         uuid.NewString(),
		Name:       in.Name,
		PriceCents: in.PriceCents,
		Total:      in.Total,
		Committed:  0,
		IsBundle:   in.IsBundle,
		BundleSize: bundleSize,
		Visible:    in.Visible,
		StageGroup: in.StageGroup,
		StageOrder: in.StageOrder,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.CreateTicketType(ctx, tt); err != nil {
		return domain.TicketType{}, err
	}
	return tt, nil
}

func (s *AdminService) ListTicketTypes(ctx context.Context) ([]domain.TicketType, error) {
	return s.repo.ListTicketTypes(ctx)
}
