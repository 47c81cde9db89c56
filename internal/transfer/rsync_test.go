package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	name   string
	args   []string
	output []byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	return f.output, f.err
}

func TestRsyncSyncArguments(t *testing.T) {
	runner := &fakeRunner{}
	r := NewRsync("airflow.internal", "deploy", "/tmp/deploy-key", WithRunner(runner))

	err := r.Sync(context.Background(), "/workspace/dags/", "/opt/airflow/dags")
	assert.NoError(t, err)

	assert.Equal(t, "rsync", runner.name)
	assert.Equal(t, []string{
		"-az",
		"-e", "ssh -i /tmp/deploy-key -o StrictHostKeyChecking=accept-new -o BatchMode=yes",
		"/workspace/dags/",
		"deploy@airflow.internal:/opt/airflow/dags",
	}, runner.args)
}

func TestRsyncSyncAppendsTrailingSlash(t *testing.T) {
	runner := &fakeRunner{}
	r := NewRsync("airflow.internal", "deploy", "/tmp/deploy-key", WithRunner(runner))

	err := r.Sync(context.Background(), "/workspace/team1_dbt", "/opt/airflow/dbt")
	assert.NoError(t, err)
	assert.Contains(t, runner.args, "/workspace/team1_dbt/")
}

func TestRsyncSyncDryRun(t *testing.T) {
	runner := &fakeRunner{}
	r := NewRsync("airflow.internal", "deploy", "/tmp/deploy-key",
		WithRunner(runner), WithDryRun(true))

	err := r.Sync(context.Background(), "/workspace/dags", "/opt/airflow/dags")
	assert.NoError(t, err)
	assert.Contains(t, runner.args, "--dry-run")
}

func TestRsyncSyncFailure(t *testing.T) {
	runner := &fakeRunner{
		output: []byte("rsync: connection unexpectedly closed"),
		err:    errors.New("exit status 255"),
	}
	r := NewRsync("airflow.internal", "deploy", "/tmp/deploy-key", WithRunner(runner))

	err := r.Sync(context.Background(), "/workspace/dags", "/opt/airflow/dags")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection unexpectedly closed")
	assert.Contains(t, err.Error(), "airflow.internal:/opt/airflow/dags")
}
