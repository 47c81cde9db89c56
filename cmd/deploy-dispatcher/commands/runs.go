package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/teamfirst/deploy-dispatcher/internal/dao/rundao"
	"github.com/teamfirst/deploy-dispatcher/internal/di"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
)

// RunsCommand returns the runs command for inspecting deployment history
func RunsCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent deployment runs for a repository",
		Description: `Reads the run-history table and prints recent dispatch runs, most recent
first, with per-action outcomes.

Examples:
  deploy-dispatcher runs --env prd --repo teamfirst/data-pipeline
  deploy-dispatcher runs --env prd --repo teamfirst/data-pipeline --limit 5`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Dispatcher environment (dev, stg, or prd)",
				Value:   "prd",
				EnvVars: []string{"ENV"},
			},
			&cli.StringFlag{
				Name:     "repo",
				Aliases:  []string{"r"},
				Usage:    "Repository full name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "branch",
				Usage: "Integration branch",
				Value: event.DefaultBranch,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Max runs to show",
				Value:   10,
			},
		},
		Action: func(c *cli.Context) error {
			return runsAction(c, logger)
		},
	}
}

func runsAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context

	container, err := di.New(c.String("env"))
	if err != nil {
		return fmt.Errorf("failed to create DI container: %w", err)
	}

	dao := di.MustGet[*rundao.DAO](container)
	pk := rundao.NewPK(c.String("repo"), c.String("branch"))

	records, err := dao.QueryRecent(ctx, pk, c.Int("limit"))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	for _, record := range records {
		created := time.Unix(record.CreatedAt, 0).UTC().Format(time.RFC3339)
		fmt.Printf("%s  pr=%d  commit=%s  %s  (%s)\n",
			record.SK, record.PRNumber, record.CommitSHA, record.Status, created)
		names := make([]string, 0, len(record.Actions))
		for name := range record.Actions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    %-16s %s\n", name, record.Actions[name])
		}
	}

	return nil
}
