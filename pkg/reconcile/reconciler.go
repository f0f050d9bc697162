// Package reconcile converges an existing ticket's fields and status toward
// the configured targets. List fields are add-only and single fields are
// overwritten; nothing a human put on the ticket is ever removed.
package reconcile

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ccd-ops/renovate-jira/pkg/models"
)

var logger = log.WithField("package", "reconcile")

// Tracker is the slice of the tracker API reconciliation needs.
type Tracker interface {
	GetTicket(ctx context.Context, key string) (*models.TicketSnapshot, error)
	UpdateTicket(ctx context.Context, key string, diff models.TicketDiff) error
	ListTransitions(ctx context.Context, key string) ([]models.Transition, error)
	FireTransition(ctx context.Context, key, transitionID string) error
}

// Targets describes the desired end state for a tracked ticket's fields.
type Targets struct {
	Labels     []string
	FixVersion string
	EpicKey    string
	Workstream string
}

// Reconciler applies field and status convergence through a tracker.
type Reconciler struct {
	tracker Tracker
}

// NewReconciler creates a new reconciler.
func NewReconciler(tracker Tracker) *Reconciler {
	return &Reconciler{tracker: tracker}
}

// Reconcile fetches the ticket, computes the convergence diff and applies it
// in a single update call when non-empty. Callers are expected to have
// checked skip statuses already; a vanished ticket is a logged no-op.
func (r *Reconciler) Reconcile(ctx context.Context, key string, targets Targets) error {
	snapshot, err := r.tracker.GetTicket(ctx, key)
	if err != nil {
		return err
	}
	if snapshot == nil {
		logger.Warnf("Reconcile: ticket %s no longer exists, nothing to converge", key)
		return nil
	}

	diff := BuildDiff(snapshot, targets)
	if diff.Empty() {
		logger.Debugf("Reconcile: ticket %s already matches targets", key)
		return nil
	}

	logger.Infof("Reconcile: converging %s (+%d labels, +%d fix versions)", key, len(diff.AddLabels), len(diff.AddFixVersions))
	return r.tracker.UpdateTicket(ctx, key, diff)
}

// BuildDiff computes the field-by-field convergence diff between a snapshot
// and the targets. Labels and fix versions are add-only; epic link and
// workstream are overwritten when different.
func BuildDiff(snapshot *models.TicketSnapshot, targets Targets) models.TicketDiff {
	var diff models.TicketDiff

	seen := map[string]bool{}
	for _, label := range targets.Labels {
		if label == "" || seen[label] || snapshot.HasLabel(label) {
			continue
		}
		seen[label] = true
		diff.AddLabels = append(diff.AddLabels, label)
	}

	if targets.FixVersion != "" && !snapshot.HasFixVersion(targets.FixVersion) {
		diff.AddFixVersions = append(diff.AddFixVersions, targets.FixVersion)
	}

	if targets.EpicKey != "" && targets.EpicKey != snapshot.EpicKey {
		epic := targets.EpicKey
		diff.EpicKey = &epic
	}

	if targets.Workstream != "" && targets.Workstream != snapshot.Workstream {
		workstream := targets.Workstream
		diff.Workstream = &workstream
	}

	return diff
}

// AdvanceStatus walks the ticket along the configured status path. A ticket
// already at the path's final status is left untouched. Each hop fires the
// transition whose name or target status matches case-insensitively; when no
// transition matches the walk stops without error, since the workflow may
// simply not allow that jump from the current state.
func (r *Reconciler) AdvanceStatus(ctx context.Context, key string, path []string) error {
	if len(path) == 0 {
		return nil
	}

	snapshot, err := r.tracker.GetTicket(ctx, key)
	if err != nil {
		return err
	}
	if snapshot == nil {
		logger.Warnf("Reconcile: ticket %s no longer exists, no status to advance", key)
		return nil
	}

	current := snapshot.Status
	final := path[len(path)-1]
	if strings.EqualFold(current, final) {
		logger.Debugf("Reconcile: ticket %s already at %q", key, final)
		return nil
	}

	for _, hop := range path {
		if strings.EqualFold(current, hop) {
			continue
		}

		transitions, err := r.tracker.ListTransitions(ctx, key)
		if err != nil {
			return err
		}

		transition := matchTransition(transitions, hop)
		if transition == nil {
			logger.Infof("Reconcile: no transition toward %q from %q on %s, stopping", hop, current, key)
			return nil
		}

		if err := r.tracker.FireTransition(ctx, key, transition.ID); err != nil {
			return err
		}

		if transition.To != "" {
			current = transition.To
		} else {
			current = hop
		}
		if strings.EqualFold(current, final) {
			return nil
		}
	}

	return nil
}

// matchTransition prefers a transition named like the hop, falling back to
// one whose target status matches.
func matchTransition(transitions []models.Transition, hop string) *models.Transition {
	for i := range transitions {
		if strings.EqualFold(transitions[i].Name, hop) {
			return &transitions[i]
		}
	}
	for i := range transitions {
		if strings.EqualFold(transitions[i].To, hop) {
			return &transitions[i]
		}
	}
	return nil
}
