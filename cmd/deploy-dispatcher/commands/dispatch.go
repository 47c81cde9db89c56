package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/teamfirst/deploy-dispatcher/internal/di"
	"github.com/teamfirst/deploy-dispatcher/internal/dispatcher"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
)

// DispatchCommand returns the dispatch command for running a deployment
func DispatchCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Evaluate a pull request event and run the deployment fan-out",
		Description: `Consumes a pull_request closed event, either from a webhook payload file or
from flags, and deploys the touched artifacts.

An event only deploys when the pull request was merged into the integration
branch and touched at least one watched prefix (dags/, team1_dbt/,
glue_jobs/). Anything else is a no-op, reported as success.

Examples:
  # Dispatch from a captured webhook payload
  deploy-dispatcher dispatch --env prd --payload event.json

  # Dispatch a synthetic event
  deploy-dispatcher dispatch --env prd --repo teamfirst/data-pipeline \
    --pr 42 --changed-file dags/new_dag.py --changed-file glue_jobs/etl.py

  # Show the action plan without touching anything
  deploy-dispatcher dispatch --env prd --payload event.json --plan

  # Resume a failed run at the third action
  deploy-dispatcher dispatch --env prd --payload event.json --from-action 2`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Dispatcher environment (dev, stg, or prd)",
				Value:   "prd",
				EnvVars: []string{"ENV"},
			},
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "Path to a pull_request webhook payload JSON file",
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Local checkout of the repository to deploy from",
				Value:   ".",
				EnvVars: []string{"WORKSPACE"},
			},
			&cli.StringFlag{
				Name:  "repo",
				Usage: "Repository full name (when not using --payload)",
			},
			&cli.IntFlag{
				Name:  "pr",
				Usage: "Pull request number (when not using --payload)",
			},
			&cli.StringFlag{
				Name:  "commit",
				Usage: "Merge commit SHA (when not using --payload)",
			},
			&cli.StringFlag{
				Name:  "target-branch",
				Usage: "Branch the pull request merged into (when not using --payload)",
				Value: event.DefaultBranch,
			},
			&cli.BoolFlag{
				Name:  "merged",
				Usage: "Whether the pull request was merged (when not using --payload)",
				Value: true,
			},
			&cli.StringSliceFlag{
				Name:  "changed-file",
				Usage: "Path touched by the pull request (can be specified multiple times)",
			},
			&cli.BoolFlag{
				Name:  "plan",
				Usage: "Print the action plan and exit without transferring anything",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Run transports in dry-run mode (rsync --dry-run, S3 upload plan only)",
			},
			&cli.IntFlag{
				Name:  "from-action",
				Usage: "Skip actions before this index when resuming a failed run",
			},
		},
		Action: func(c *cli.Context) error {
			return dispatchAction(c, logger)
		},
	}
}

func dispatchAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context

	e, err := loadEvent(c)
	if err != nil {
		return err
	}

	container, err := di.New(c.String("env"),
		di.WithWorkspace(c.String("workspace")),
		di.WithDryRun(c.Bool("dry-run")),
	)
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}

	service := di.MustGet[*dispatcher.Service](container)

	if c.Bool("plan") {
		printPlan(service.Plan(e))
		return nil
	}

	result, err := service.Dispatch(ctx, e, c.Int("from-action"))
	if err != nil {
		return err
	}

	if !result.Eligible {
		fmt.Println("Event not eligible for deployment; nothing to do.")
		return nil
	}

	fmt.Printf("Run %s complete:\n", result.RunID)
	for _, name := range []string{dispatcher.ActionDagsSync, dispatcher.ActionDbtConfigSync, dispatcher.ActionGlueJobsSync} {
		if status, ok := result.Statuses[name]; ok {
			fmt.Printf("  %-16s %s\n", name, status)
		}
	}
	return nil
}

func loadEvent(c *cli.Context) (event.DeploymentEvent, error) {
	if payload := c.String("payload"); payload != "" {
		body, err := os.ReadFile(payload)
		if err != nil {
			return event.DeploymentEvent{}, fmt.Errorf("failed to read payload file: %w", err)
		}
		return event.ParsePullRequest(body)
	}

	if c.String("repo") == "" {
		return event.DeploymentEvent{}, fmt.Errorf("either --payload or --repo is required")
	}
	if len(c.StringSlice("changed-file")) == 0 && os.Getenv("GITHUB_TOKEN") == "" {
		return event.DeploymentEvent{}, fmt.Errorf("at least one --changed-file is required (or set GITHUB_TOKEN to look the files up)")
	}

	return event.DeploymentEvent{
		Repo:         c.String("repo"),
		Number:       c.Int("pr"),
		Merged:       c.Bool("merged"),
		TargetBranch: c.String("target-branch"),
		CommitSHA:    c.String("commit"),
		ChangedPaths: c.StringSlice("changed-file"),
	}, nil
}

func printPlan(plan dispatcher.Plan) {
	if !plan.Eligible {
		fmt.Println("Event not eligible for deployment; no actions would run.")
		return
	}
	fmt.Println("Deployment plan:")
	for i, action := range plan.Actions {
		state := "skip"
		if action.WillRun {
			state = "run"
		}
		fmt.Printf("  %d. %-16s (%s) %s\n", i, action.Name, action.Prefix, state)
	}
}
