package dispatcher

import (
	"context"

	"github.com/teamfirst/deploy-dispatcher/internal/event"
	"github.com/teamfirst/deploy-dispatcher/internal/services"
	"github.com/teamfirst/deploy-dispatcher/internal/transfer"
)

// FileLister backfills the changed file list for a pull request when the
// webhook payload did not carry one.
type FileLister interface {
	ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error)
}

// Service wires configuration, credentials, and transports into a Dispatcher
// for each run. The SSH key is fetched per run and removed when the run ends.
type Service struct {
	config    *services.Config
	keys      *services.SSHKeyService
	identity  *services.IdentityService
	s3Client  transfer.S3API
	recorder  RunRecorder
	files     FileLister
	workspace string
	dryRun    bool
}

// ServiceInput carries the dependencies for NewService.
type ServiceInput struct {
	Config    *services.Config
	Keys      *services.SSHKeyService
	Identity  *services.IdentityService
	S3Client  transfer.S3API
	Recorder  RunRecorder // nil disables run history
	Files     FileLister  // nil disables changed-file backfill
	Workspace string
	DryRun    bool
}

// NewService creates a dispatch service.
func NewService(input ServiceInput) *Service {
	return &Service{
		config:    input.Config,
		keys:      input.Keys,
		identity:  input.Identity,
		s3Client:  input.S3Client,
		recorder:  input.Recorder,
		files:     input.Files,
		workspace: input.Workspace,
		dryRun:    input.DryRun,
	}
}

// Plan returns what a dispatch of the event would do, without credentials or
// remote access.
func (s *Service) Plan(e event.DeploymentEvent) Plan {
	actions := BuildActions(ActionsInput{
		Config:    s.config,
		Workspace: s.workspace,
		DryRun:    true,
	})
	return New(s.config.Branch, actions).Evaluate(e)
}

// Dispatch evaluates the event and runs the action pipeline from startAt.
// Credentials are only touched for eligible events.
func (s *Service) Dispatch(ctx context.Context, e event.DeploymentEvent, startAt int) (*Result, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	if len(e.ChangedPaths) == 0 && s.files != nil && e.Merged && e.Number > 0 {
		paths, err := s.files.ListPullRequestFiles(ctx, e.Repo, e.Number)
		if err != nil {
			return nil, err
		}
		e.ChangedPaths = paths
	}

	if !e.Eligible(s.config.Branch) {
		// Build a credential-free dispatcher just to produce the no-op result.
		return New(s.config.Branch, nil).Dispatch(ctx, e)
	}

	keyPath, cleanup, err := s.keys.Fetch(ctx, s.config.SSHKeySecretName)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	actions := BuildActions(ActionsInput{
		Config:    s.config,
		Workspace: s.workspace,
		KeyPath:   keyPath,
		S3Client:  s.s3Client,
		DryRun:    s.dryRun,
	})

	opts := []Option{WithPreflight(s.identity.Check)}
	if s.recorder != nil {
		opts = append(opts, WithRecorder(s.recorder))
	}

	return New(s.config.Branch, actions, opts...).DispatchFrom(ctx, e, startAt)
}
