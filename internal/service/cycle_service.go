package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

const cycleListKey = "all"

type CycleService struct {
	repo      cycle.Repository
	lists     *cache.Store[[]*cycle.Cycle]
	publisher events.Publisher
	auditSvc  *AuditService
	metrics   *metrics.Collector
	log       *zap.Logger
}

func NewCycleService(
	repo cycle.Repository,
	lists *cache.Store[[]*cycle.Cycle],
	publisher events.Publisher,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *CycleService {
	return &CycleService{
		repo:      repo,
		lists:     lists,
		publisher: publisher,
		auditSvc:  auditSvc,
		metrics:   m,
		log:       log,
	}
}

// ListCycles returns every cycle, newest first. If more than one cycle is
// found active, the most recently activated one is kept and the others are
// deactivated before the list is returned.
func (s *CycleService) ListCycles(ctx context.Context) ([]*cycle.Cycle, error) {
	return s.lists.Load(ctx, cycleListKey, func(ctx context.Context) ([]*cycle.Cycle, error) {
		cycles, err := s.repo.List(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.repair(ctx, cycles); err != nil {
			return nil, err
		}
		return cycles, nil
	})
}

func (s *CycleService) repair(ctx context.Context, cycles []*cycle.Cycle) error {
	winner, stale := cycle.Reconcile(cycles)
	if len(stale) == 0 {
		return nil
	}

	ids := lo.Map(stale, func(c *cycle.Cycle, _ int) uuid.UUID { return c.ID })
	s.metrics.CycleAnomaliesTotal.Inc()
	s.log.Warn("multiple active cycles detected, keeping most recently activated",
		zap.String("kept", winner.ID.String()),
		zap.Strings("deactivated", lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })),
	)

	if err := s.repo.Deactivate(ctx, ids...); err != nil {
		return fmt.Errorf("repairing active cycles: %w", err)
	}
	for _, c := range stale {
		c.Active = false
	}
	return nil
}

// ActiveCycle returns the active cycle or cycle.ErrNoActiveCycle.
func (s *CycleService) ActiveCycle(ctx context.Context) (*cycle.Cycle, error) {
	cycles, err := s.ListCycles(ctx)
	if err != nil {
		return nil, err
	}
	active, ok := lo.Find(cycles, func(c *cycle.Cycle) bool { return c.Active })
	if !ok {
		return nil, cycle.ErrNoActiveCycle
	}
	return active, nil
}

func (s *CycleService) CreateCycle(ctx context.Context, name string, actor Actor) (*cycle.Cycle, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	name, err := cycle.NormalizeName(name)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"name is required"}}
	}

	c := &cycle.Cycle{Name: name, CreatedBy: actor.UserID}
	if err := s.repo.Create(ctx, c); err != nil {
		s.log.Error("failed to create cycle", zap.Error(err))
		return nil, fmt.Errorf("creating cycle: %w", err)
	}
	s.afterWrite(ctx, actor, domain.ActionCreate, events.CycleCreated, c)
	return c, nil
}

// SetActive makes id the only active cycle.
func (s *CycleService) SetActive(ctx context.Context, id uuid.UUID, actor Actor) (*cycle.Cycle, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	c, err := s.repo.SetActive(ctx, id)
	if err != nil {
		return nil, err
	}
	s.afterWrite(ctx, actor, domain.ActionUpdate, events.CycleActivated, c)

	s.log.Info("cycle activated",
		zap.String("cycle_id", c.ID.String()),
		zap.String("activated_by", actor.UserID.String()),
	)
	return c, nil
}

// Deactivate turns the cycle off. Deactivating an inactive cycle is a no-op.
func (s *CycleService) Deactivate(ctx context.Context, id uuid.UUID, actor Actor) (*cycle.Cycle, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return c, nil
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivating cycle: %w", err)
	}
	c.Active = false
	s.afterWrite(ctx, actor, domain.ActionUpdate, events.CycleDeactivated, c)
	return c, nil
}

func (s *CycleService) Rename(ctx context.Context, id uuid.UUID, name string, actor Actor) (*cycle.Cycle, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	name, err := cycle.NormalizeName(name)
	if err != nil {
		return nil, &ValidationError{Fields: []string{"name is required"}}
	}

	c, err := s.repo.Rename(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.lists.Invalidate()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       domain.ActionUpdate,
		ResourceType: "cycle",
		ResourceID:   c.ID.String(),
		Changes:      map[string]string{"name": name},
	})
	return c, nil
}

// Delete removes an inactive cycle. The active cycle is refused before any write.
func (s *CycleService) Delete(ctx context.Context, id uuid.UUID, actor Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Active {
		return cycle.ErrCycleActive
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.log.Error("failed to delete cycle", zap.String("cycle_id", id.String()), zap.Error(err))
		return fmt.Errorf("deleting cycle: %w", err)
	}
	s.afterWrite(ctx, actor, domain.ActionDelete, events.CycleDeleted, c)
	return nil
}

func (s *CycleService) afterWrite(ctx context.Context, actor Actor, action domain.AuditAction, t events.Type, c *cycle.Cycle) {
	s.lists.Invalidate()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Actor:        actor,
		Action:       action,
		ResourceType: "cycle",
		ResourceID:   c.ID.String(),
	})
	if err := s.publisher.Publish(ctx, events.New(t, actor.UserID, "cycle", c.ID.String(), c)); err != nil {
		s.log.Warn("failed to publish event", zap.String("type", string(t)), zap.Error(err))
	}
}
