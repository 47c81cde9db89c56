package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/teamfirst/deploy-dispatcher/internal/dbtconfig"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
	"github.com/teamfirst/deploy-dispatcher/internal/services"
	"github.com/teamfirst/deploy-dispatcher/internal/transfer"
)

// ActionsInput carries everything needed to construct the three fan-out
// actions for one run. KeyPath points at the materialized SSH private key.
type ActionsInput struct {
	Config    *services.Config
	Workspace string // Local checkout of the repository
	KeyPath   string
	S3Client  transfer.S3API
	DryRun    bool
}

// BuildActions constructs the ordered action pipeline:
//  1. dags-sync: archive-sync dags/ to the Airflow host
//  2. dbt-config-sync: restructure team1_dbt/ into the deployed layout, then
//     archive-sync it to the dbt path on the same host
//  3. glue-jobs-sync: diff-based object sync of glue_jobs/ to S3
func BuildActions(input ActionsInput) []Action {
	cfg := input.Config

	rsync := transfer.NewRsync(cfg.DeployHost, cfg.SSHUser, input.KeyPath,
		transfer.WithDryRun(input.DryRun))
	s3sync := transfer.NewS3Sync(input.S3Client, cfg.S3Bucket,
		transfer.WithS3DryRun(input.DryRun))

	dagsDir := filepath.Join(input.Workspace, strings.TrimSuffix(event.PrefixDags, "/"))
	dbtDir := filepath.Join(input.Workspace, strings.TrimSuffix(event.PrefixDbt, "/"))
	glueDir := filepath.Join(input.Workspace, strings.TrimSuffix(event.PrefixGlueJobs, "/"))

	return []Action{
		{
			Name:   ActionDagsSync,
			Prefix: event.PrefixDags,
			Run: func(ctx context.Context) error {
				return rsync.Sync(ctx, dagsDir, cfg.DagsDeployPath)
			},
		},
		{
			Name:   ActionDbtConfigSync,
			Prefix: event.PrefixDbt,
			Run: func(ctx context.Context) error {
				staging, err := os.MkdirTemp("", "dbt-staging-*")
				if err != nil {
					return fmt.Errorf("failed to create dbt staging directory: %w", err)
				}
				defer os.RemoveAll(staging)

				if err := dbtconfig.Stage(dbtDir, staging); err != nil {
					return err
				}
				return rsync.Sync(ctx, staging, cfg.DbtDeployPath)
			},
		},
		{
			Name:   ActionGlueJobsSync,
			Prefix: event.PrefixGlueJobs,
			Run: func(ctx context.Context) error {
				_, err := s3sync.Sync(ctx, glueDir, cfg.GluePrefix)
				return err
			},
		},
	}
}
