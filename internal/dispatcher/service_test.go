package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teamfirst/deploy-dispatcher/internal/errors"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
	"github.com/teamfirst/deploy-dispatcher/internal/services"
)

type fakeFileLister struct {
	paths []string
	calls int
}

func (f *fakeFileLister) ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error) {
	f.calls++
	return f.paths, nil
}

func testConfig() *services.Config {
	return &services.Config{
		Branch:           "main",
		DeployHost:       "airflow.internal",
		SSHUser:          "deploy",
		SSHKeySecretName: "deploy-dispatcher/prd/ssh-key",
		DagsDeployPath:   "/opt/airflow/dags",
		DbtDeployPath:    "/opt/airflow/dbt",
		S3Bucket:         "team-glue-artifacts",
		GluePrefix:       "glue/jobs",
	}
}

func TestServiceDispatchRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DeployHost = ""
	service := NewService(ServiceInput{Config: cfg})

	_, err := service.Dispatch(context.Background(), mergedEvent("dags/a.py"), 0)
	assert.ErrorIs(t, err, errors.ErrDeployHostRequired)
}

func TestServiceDispatchBackfillsChangedFiles(t *testing.T) {
	files := &fakeFileLister{paths: []string{"README.md", "docs/setup.md"}}
	service := NewService(ServiceInput{
		Config: testConfig(),
		Files:  files,
	})

	// Event without changed paths: the lister supplies them, and since none
	// fall under a watched prefix the dispatch is a successful no-op.
	e := mergedEvent()
	result, err := service.Dispatch(context.Background(), e, 0)
	assert.NoError(t, err)
	assert.Equal(t, 1, files.calls)
	assert.False(t, result.Eligible)
}

func TestServiceDispatchSkipsBackfillWhenPathsPresent(t *testing.T) {
	files := &fakeFileLister{paths: []string{"dags/a.py"}}
	service := NewService(ServiceInput{
		Config: testConfig(),
		Files:  files,
	})

	// Unmerged, so ineligible regardless; the payload already carried paths.
	e := mergedEvent("README.md")
	e.Merged = false
	result, err := service.Dispatch(context.Background(), e, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, files.calls)
	assert.False(t, result.Eligible)
}

func TestServicePlanIsCredentialFree(t *testing.T) {
	service := NewService(ServiceInput{Config: testConfig()})

	plan := service.Plan(mergedEvent("glue_jobs/etl.py"))
	assert.True(t, plan.Eligible)
	assert.Len(t, plan.Actions, 3)
	assert.False(t, plan.Actions[0].WillRun)
	assert.False(t, plan.Actions[1].WillRun)
	assert.True(t, plan.Actions[2].WillRun)
}

func TestEligibilityRequiresWatchedPath(t *testing.T) {
	e := mergedEvent("team1_dbt_other/file.sql")
	assert.False(t, e.Eligible("main"))

	e = mergedEvent("team1_dbt/dbt_project.yml")
	assert.True(t, e.Eligible("main"))
	assert.Equal(t, []string{event.PrefixDbt}, e.TouchedPrefixes())
}