// Package dispatcher evaluates deployment events and runs transfer actions
// in a fixed order, stopping at the first failure. There is no rollback; a
// partially-completed run is a visible state, never masked.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"
	"github.com/segmentio/ksuid"

	"github.com/teamfirst/deploy-dispatcher/internal/dao/rundao"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
)

// Action names, in dispatch order.
const (
	ActionDagsSync      = "dags-sync"
	ActionDbtConfigSync = "dbt-config-sync"
	ActionGlueJobsSync  = "glue-jobs-sync"
)

// Action is one transfer step in the fan-out. Prefix gates the action: it
// only runs when the event touched that prefix.
type Action struct {
	Name   string
	Prefix string
	Run    func(ctx context.Context) error
}

// RunRecorder persists run history. *rundao.DAO satisfies it; a nil recorder
// disables history.
type RunRecorder interface {
	Create(ctx context.Context, input rundao.CreateInput) (rundao.Record, error)
	SetActionStatus(ctx context.Context, pk rundao.PK, sk, action string, status rundao.ActionStatus) error
	Finish(ctx context.Context, pk rundao.PK, sk string, status rundao.RunStatus, errorMsg *string) error
}

// Dispatcher runs the ordered action pipeline for eligible events.
type Dispatcher struct {
	branch    string
	actions   []Action
	recorder  RunRecorder
	preflight func(ctx context.Context) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder enables run-history persistence.
func WithRecorder(recorder RunRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithPreflight installs a check that runs after eligibility but before the
// first action. A preflight failure aborts the run with nothing transferred.
func WithPreflight(check func(ctx context.Context) error) Option {
	return func(d *Dispatcher) {
		d.preflight = check
	}
}

// New creates a Dispatcher for the given integration branch and actions.
func New(branch string, actions []Action, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		branch:  branch,
		actions: actions,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result summarizes one dispatch.
type Result struct {
	Eligible bool
	RunID    rundao.ID
	Statuses map[string]rundao.ActionStatus
}

// Plan describes what Dispatch would do for an event without running it.
type Plan struct {
	Eligible bool
	Actions  []PlannedAction
}

// PlannedAction is one entry of a Plan.
type PlannedAction struct {
	Name    string
	Prefix  string
	WillRun bool
}

// Evaluate returns the action plan for an event.
func (d *Dispatcher) Evaluate(e event.DeploymentEvent) Plan {
	eligible := e.Eligible(d.branch)
	return Plan{
		Eligible: eligible,
		Actions: slicex.Map(d.actions, func(action Action) PlannedAction {
			return PlannedAction{
				Name:    action.Name,
				Prefix:  action.Prefix,
				WillRun: eligible && e.Touches(action.Prefix),
			}
		}),
	}
}

// Dispatch evaluates the event and, if eligible, runs the action pipeline
// from the start. An ineligible event is a successful no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, e event.DeploymentEvent) (*Result, error) {
	return d.DispatchFrom(ctx, e, 0)
}

// DispatchFrom runs the pipeline skipping actions before index startAt. It
// supports re-running the remainder of a failed run: each action is
// idempotent, so already-completed transfers can be safely skipped.
func (d *Dispatcher) DispatchFrom(ctx context.Context, e event.DeploymentEvent, startAt int) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	result := &Result{
		Statuses: make(map[string]rundao.ActionStatus, len(d.actions)),
	}

	if !e.Eligible(d.branch) {
		logger.Info().
			Str("repo", e.Repo).
			Int("pr", e.Number).
			Bool("merged", e.Merged).
			Str("target_branch", e.TargetBranch).
			Msg("Event not eligible for deployment, skipping")
		return result, nil
	}
	result.Eligible = true

	logger.Info().
		Str("repo", e.Repo).
		Int("pr", e.Number).
		Str("commit", e.CommitSHA).
		Strs("touched_prefixes", e.TouchedPrefixes()).
		Msg("Dispatching deployment")

	if d.preflight != nil {
		if err := d.preflight(ctx); err != nil {
			return result, fmt.Errorf("preflight failed: %w", err)
		}
	}

	pk, sk := d.beginRun(ctx, e)
	result.RunID = rundao.NewID(pk, sk)

	var runErr error
	for i, action := range d.actions {
		switch {
		case runErr != nil:
			// fail-fast: nothing after a failed action runs
			d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusSkipped)
		case i < startAt:
			logger.Info().Str("action", action.Name).Int("index", i).Msg("Skipping action before start index")
			d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusSkipped)
		case !e.Touches(action.Prefix):
			logger.Info().Str("action", action.Name).Str("prefix", action.Prefix).Msg("Prefix untouched, skipping action")
			d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusSkipped)
		default:
			d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusInProgress)
			logger.Info().Str("action", action.Name).Msg("Running action")

			if err := action.Run(ctx); err != nil {
				logger.Error().Err(err).Str("action", action.Name).Msg("Action failed")
				d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusFailed)
				runErr = fmt.Errorf("action %s: %w", action.Name, err)
				continue
			}
			d.markAction(ctx, pk, sk, result, action.Name, rundao.ActionStatusSuccess)
		}
	}

	d.finishRun(ctx, pk, sk, runErr)

	if runErr != nil {
		return result, runErr
	}
	logger.Info().Str("run_id", result.RunID.String()).Msg("Deployment complete")
	return result, nil
}

func (d *Dispatcher) actionNames() []string {
	names := make([]string, 0, len(d.actions))
	for _, action := range d.actions {
		names = append(names, action.Name)
	}
	return names
}

// beginRun creates the history record. History is best-effort: a bookkeeping
// failure never blocks a deployment.
func (d *Dispatcher) beginRun(ctx context.Context, e event.DeploymentEvent) (rundao.PK, string) {
	pk := rundao.NewPK(e.Repo, e.TargetBranch)
	sk := ksuid.New().String()

	if d.recorder == nil {
		return pk, sk
	}

	_, err := d.recorder.Create(ctx, rundao.CreateInput{
		Repo:      e.Repo,
		Branch:    e.TargetBranch,
		SK:        sk,
		PRNumber:  e.Number,
		CommitSHA: e.CommitSHA,
		Actions:   d.actionNames(),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to create run record")
	}
	return pk, sk
}

func (d *Dispatcher) markAction(ctx context.Context, pk rundao.PK, sk string, result *Result, name string, status rundao.ActionStatus) {
	result.Statuses[name] = status
	if d.recorder == nil {
		return
	}
	if err := d.recorder.SetActionStatus(ctx, pk, sk, name, status); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("action", name).Msg("Failed to record action status")
	}
}

func (d *Dispatcher) finishRun(ctx context.Context, pk rundao.PK, sk string, runErr error) {
	if d.recorder == nil {
		return
	}

	status := rundao.RunStatusSuccess
	var errorMsg *string
	if runErr != nil {
		status = rundao.RunStatusFailed
		msg := runErr.Error()
		errorMsg = &msg
	}
	if err := d.recorder.Finish(ctx, pk, sk, status, errorMsg); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to finish run record")
	}
}
