package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// VerifyReport summarizes drift between the materialized evaluation
// tuples and what the role structure says they should be.
type VerifyReport struct {
	RolesChecked  int
	MissingTuples int
	ExtraTuples   int
	DriftRoleIDs  []int64
}

// HasDrift reports whether any role's tuples diverged.
func (r *VerifyReport) HasDrift() bool {
	return len(r.DriftRoleIDs) > 0
}

// VerifyEvaluations compares every object role's materialized tuples
// against its expected set without changing anything. Drift normally
// means a write bypassed the engine, such as rows deleted directly in
// the database.
func (e *Engine) VerifyEvaluations(ctx context.Context) (*VerifyReport, error) {
	st := e.store()
	m := newMaterializer(st, e.reg, e.settings, e.log, nil)

	roles, err := st.AllObjectRoles(ctx)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{RolesChecked: len(roles)}
	for _, role := range roles {
		toDelete, toAdd, err := m.neededUpdates(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("failed to verify object role %d: %w", role.ID, err)
		}
		extra := len(toDelete[PKInt]) + len(toDelete[PKUUID])
		if extra == 0 && len(toAdd) == 0 {
			continue
		}
		report.MissingTuples += len(toAdd)
		report.ExtraTuples += extra
		report.DriftRoleIDs = append(report.DriftRoleIDs, role.ID)
	}
	sort.Slice(report.DriftRoleIDs, func(i, j int) bool {
		return report.DriftRoleIDs[i] < report.DriftRoleIDs[j]
	})
	return report, nil
}

// RecomputeAll rebuilds the team membership closure and reconciles
// every object role in one transaction. It is the recovery path for
// drift and the normal follow-up after seeding or bulk imports.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	return e.write(ctx, func(st *Store) error {
		if _, err := computeTeamMemberRoles(ctx, st, e.reg, e.log); err != nil {
			return err
		}
		m := newMaterializer(st, e.reg, e.settings, e.log, e.metrics)
		return m.Reconcile(ctx, nil)
	})
}

// Maintenance runs a scheduled full recompute, for deployments where
// another process writes to the same database outside the engine.
type Maintenance struct {
	cron *cron.Cron
	log  *logrus.Logger
}

// NewMaintenance schedules RecomputeAll on a cron expression like
// "@hourly" or "0 3 * * *".
func NewMaintenance(e *Engine, schedule string) (*Maintenance, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx := context.Background()
		report, err := e.VerifyEvaluations(ctx)
		if err != nil {
			e.log.WithError(err).Error("maintenance sweep failed to verify evaluations")
			return
		}
		if !report.HasDrift() {
			return
		}
		e.log.WithFields(logrus.Fields{
			"drift_roles":    len(report.DriftRoleIDs),
			"missing_tuples": report.MissingTuples,
			"extra_tuples":   report.ExtraTuples,
		}).Warning("maintenance sweep found evaluation drift, recomputing")
		if err := e.RecomputeAll(ctx); err != nil {
			e.log.WithError(err).Error("maintenance sweep failed to recompute")
		}
	})
	if err != nil {
		return nil, NewConfigError("invalid maintenance schedule %q: %v", schedule, err)
	}
	return &Maintenance{cron: c, log: e.log}, nil
}

// Start begins running sweeps in the background.
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop cancels future sweeps and waits for a running one to finish.
func (m *Maintenance) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}
