package app

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/resguarit/ticketera-rg-sub002/internal/clock"
	"github.com/resguarit/ticketera-rg-sub002/internal/domain"
	"github.com/resguarit/ticketera-rg-sub002/internal/events"
	"github.com/resguarit/ticketera-rg-sub002/internal/metrics"
)

type StageRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTicketTypeForUpdate(ctx context.Context, id string) (domain.TicketType, error)
	// ListStageGroup returns every tier in the group ordered by stage
	// order.
	ListStageGroup(ctx context.Context, stageGroup string) ([]domain.TicketType, error)
	SetVisibility(ctx context.Context, ticketTypeID string, visible bool) error
}

// StageService drives the per-group two-state machine (hidden/active) for
// tiered pricing: when an active tier sells out it goes hidden and the next
// tier in the group takes over. All visibility flips for staging happen here,
// never at call sites.
type StageService struct {
	repo  StageRepository
	pub   events.Publisher
	clock clock.Clock
	log   *zap.SugaredLogger
}

func NewStageService(repo StageRepository, pub events.Publisher, clk clock.Clock, log *zap.SugaredLogger) *StageService {
	return &StageService{
		repo:  repo,
		pub:   pub,
		clock: clk,
		log:   log,
	}
}

// CheckCutover transitions a depleted active tier to hidden and activates the
// next tier in its stage group, if any. Called synchronously after every
// operation that can deplete a staged ticket type. A no-op for unstaged,
// hidden, or not-yet-depleted types, so it is always safe to call.
func (s *StageService) CheckCutover(ctx context.Context, ticketTypeID string) error {
	var cutover bool
	var from, to domain.TicketType

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, ticketTypeID)
		if err != nil {
			return err
		}
		if tt.StageGroup == "" || !tt.Visible || tt.Remaining() > 0 {
			return nil
		}

		if err := s.repo.SetVisibility(txCtx, tt.ID, false); err != nil {
			return err
		}

		tiers, err := s.repo.ListStageGroup(txCtx, tt.StageGroup)
		if err != nil {
			return err
		}
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].StageOrder < tiers[j].StageOrder })

		cutover = true
		from = tt
		for _, tier := range tiers {
			if tier.StageOrder > tt.StageOrder {
				if err := s.repo.SetVisibility(txCtx, tier.ID, true); err != nil {
					return err
				}
				to = tier
				break
			}
		}
		// No next tier: the group simply ends.
		return nil
	})
	if err != nil {
		return err
	}
	if !cutover {
		return nil
	}

	metrics.StageCutovers.Inc()
	now := s.clock.Now()
	s.logAndPublish(ctx, events.Event{
		Type:         events.TypeTicketTypeSoldOut,
		TicketTypeID: from.ID,
		StageGroup:   from.StageGroup,
		OccurredAt:   now,
	})
	if to.ID != "" {
		s.log.Infow("stage cutover", "stage_group", from.StageGroup, "sold_out", from.ID, "activated", to.ID)
		s.logAndPublish(ctx, events.Event{
			Type:         events.TypeTicketTypeActivated,
			TicketTypeID: to.ID,
			StageGroup:   to.StageGroup,
			OccurredAt:   now,
		})
	} else {
		s.log.Infow("stage group exhausted", "stage_group", from.StageGroup, "sold_out", from.ID)
	}
	return nil
}

// ForceActivate is the manual override: it makes the given tier the single
// active one in its stage group, hiding every sibling first.
func (s *StageService) ForceActivate(ctx context.Context, ticketTypeID string) error {
	if ticketTypeID == "" {
		return domain.ErrInvalidID
	}

	var activated domain.TicketType
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		tt, err := s.repo.GetTicketTypeForUpdate(txCtx, ticketTypeID)
		if err != nil {
			return err
		}
		activated = tt

		if tt.StageGroup == "" {
			return s.repo.SetVisibility(txCtx, tt.ID, true)
		}

		tiers, err := s.repo.ListStageGroup(txCtx, tt.StageGroup)
		if err != nil {
			return err
		}
		for _, tier := range tiers {
			if err := s.repo.SetVisibility(txCtx, tier.ID, tier.ID == tt.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logAndPublish(ctx, events.Event{
		Type:         events.TypeTicketTypeActivated,
		TicketTypeID: activated.ID,
		StageGroup:   activated.StageGroup,
		OccurredAt:   s.clock.Now(),
	})
	return nil
}

func (s *StageService) logAndPublish(ctx context.Context, e events.Event) {
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warnw("publish event", "type", e.Type, "error", err)
	}
}
