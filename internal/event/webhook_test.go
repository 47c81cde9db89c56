package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/teamfirst/deploy-dispatcher/internal/errors"
)

func TestParsePullRequest(t *testing.T) {
	body := []byte(`{
		"action": "closed",
		"number": 42,
		"pull_request": {
			"merged": true,
			"merge_commit_sha": "abc1234",
			"base": {"ref": "main"}
		},
		"repository": {"full_name": "teamfirst/data-pipeline"},
		"changed_files": ["dags/new_dag.py", "team1_dbt/dbt_project.yml"]
	}`)

	e, err := ParsePullRequest(body)
	assert.NoError(t, err)
	assert.Equal(t, "teamfirst/data-pipeline", e.Repo)
	assert.Equal(t, 42, e.Number)
	assert.True(t, e.Merged)
	assert.Equal(t, "main", e.TargetBranch)
	assert.Equal(t, "abc1234", e.CommitSHA)
	assert.Equal(t, []string{"dags/new_dag.py", "team1_dbt/dbt_project.yml"}, e.ChangedPaths)
	assert.True(t, e.Eligible(DefaultBranch))
}

func TestParsePullRequestRejectsNonClosed(t *testing.T) {
	body := []byte(`{
		"action": "opened",
		"number": 7,
		"pull_request": {"merged": false, "base": {"ref": "main"}},
		"repository": {"full_name": "teamfirst/data-pipeline"}
	}`)

	_, err := ParsePullRequest(body)
	assert.ErrorIs(t, err, apperrors.ErrInvalidWebhookPayload)
}

func TestParsePullRequestRejectsMalformedJSON(t *testing.T) {
	_, err := ParsePullRequest([]byte(`{"action": `))
	assert.ErrorIs(t, err, apperrors.ErrInvalidWebhookPayload)
}

func TestParsePullRequestUnmergedClose(t *testing.T) {
	body := []byte(`{
		"action": "closed",
		"number": 9,
		"pull_request": {"merged": false, "base": {"ref": "main"}},
		"repository": {"full_name": "teamfirst/data-pipeline"},
		"changed_files": ["dags/x.py"]
	}`)

	e, err := ParsePullRequest(body)
	assert.NoError(t, err)
	assert.False(t, e.Merged)
	assert.False(t, e.Eligible(DefaultBranch))
}
