package main

import (
	"context"
	"os"

	"github.com/teamfirst/deploy-dispatcher/cmd/deploy-dispatcher/commands"
	"github.com/teamfirst/deploy-dispatcher/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "deploy-dispatcher",
		Usage: "Merge-triggered deployment dispatcher for the data pipeline",
		Description: `Evaluates merged pull requests against the watched path prefixes and fans
artifacts out to their destinations:

  - dags/       Airflow DAG definitions, archive-synced to the Airflow host
  - team1_dbt/  dbt configuration, restructured then archive-synced
  - glue_jobs/  Glue job scripts, diff-synced to S3

Transfers run sequentially and fail fast; a failed run can be resumed with
dispatch --from-action.`,
		Commands: []*cli.Command{
			commands.DispatchCommand(&logger),
			commands.RunsCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
