package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"prosopography/internal/domain"
	"prosopography/internal/repository"
)

// ReconcileRepository defines the repository interface for reconciliation
type ReconcileRepository interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error
}

// ReconcileService repairs object permissions that drifted from collection
// membership, for example after grants were edited by hand or a database
// was restored from an older dump
type ReconcileService struct {
	repo     ReconcileRepository
	registry *domain.Registry
	eventBus *EventBus
	log      zerolog.Logger
}

// NewReconcileService creates a new reconcile service
func NewReconcileService(repo ReconcileRepository, registry *domain.Registry, eventBus *EventBus, logger zerolog.Logger) *ReconcileService {
	if registry == nil {
		registry = domain.DefaultRegistry()
	}
	return &ReconcileService{
		repo:     repo,
		registry: registry,
		eventBus: eventBus,
		log:      logger,
	}
}

// ReconcileReport summarizes a reconciliation run
type ReconcileReport struct {
	Entities int            `json:"entities"`
	Changed  int            `json:"changed"`
	Granted  []domain.Grant `json:"granted"`
	Revoked  []domain.Grant `json:"revoked"`
	DryRun   bool           `json:"dry_run"`
}

// ReconcilePermissions makes the change and delete grants of every grantable
// entity equal to the groups allowed on its collections. With dryRun the
// differences are reported without being applied.
func (r *ReconcileService) ReconcilePermissions(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	report := &ReconcileReport{
		Granted: make([]domain.Grant, 0),
		Revoked: make([]domain.Grant, 0),
		DryRun:  dryRun,
	}
	kinds := r.registry.Grantable()
	if len(kinds) == 0 {
		return report, nil
	}

	err := r.repo.Atomic(ctx, func(ctx context.Context, tx repository.Tx) error {
		members, err := tx.Members(ctx, kinds...)
		if err != nil {
			return err
		}
		for _, m := range members {
			granted, revoked, err := r.reconcileEntity(ctx, tx, m, dryRun)
			if err != nil {
				return fmt.Errorf("reconcile %s %d: %w", m.Kind, m.ID, err)
			}
			report.Entities++
			if len(granted)+len(revoked) > 0 {
				report.Changed++
				report.Granted = append(report.Granted, granted...)
				report.Revoked = append(report.Revoked, revoked...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Changed > 0 {
		r.log.Info().
			Int("entities", report.Changed).
			Int("granted", len(report.Granted)).
			Int("revoked", len(report.Revoked)).
			Bool("dry_run", dryRun).
			Msg("reconciled permissions")
		if !dryRun {
			r.eventBus.Publish(Event{Type: EventGroupsChanged, Payload: report})
		}
	}
	return report, nil
}

// reconcileEntity compares the stored grants of one entity with the expected ones
func (r *ReconcileService) reconcileEntity(ctx context.Context, tx repository.Tx, m repository.Member, dryRun bool) (granted, revoked []domain.Grant, err error) {
	collections, err := tx.EntityCollections(ctx, m.ID)
	if err != nil {
		return nil, nil, err
	}
	groups, err := tx.GroupsAllowed(ctx, collections...)
	if err != nil {
		return nil, nil, err
	}

	managed := r.registry.ObjectPermissions(m.Kind)
	codenames := make(map[string]bool, len(managed))
	for _, c := range managed {
		codenames[c] = true
	}

	stored, err := tx.Grants(ctx, m.ID)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[domain.Grant]bool, len(stored))
	for _, g := range stored {
		have[g] = true
		// Grants of unrelated codenames are not managed by collections
		if codenames[g.Codename] && !groups.Has(g.GroupID) {
			revoked = append(revoked, g)
		}
	}
	for _, gid := range groups.Sorted() {
		for _, c := range managed {
			g := domain.Grant{GroupID: gid, EntityID: m.ID, Codename: c}
			if !have[g] {
				granted = append(granted, g)
			}
		}
	}

	if dryRun {
		return granted, revoked, nil
	}
	for _, g := range granted {
		if err := tx.AssignPermission(ctx, g.GroupID, g.Codename, g.EntityID); err != nil {
			return nil, nil, err
		}
	}
	for _, g := range revoked {
		if err := tx.RemovePermission(ctx, g.GroupID, g.Codename, g.EntityID); err != nil {
			return nil, nil, err
		}
	}
	return granted, revoked, nil
}
