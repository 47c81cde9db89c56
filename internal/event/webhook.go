package event

import (
	"encoding/json"
	"fmt"

	"github.com/teamfirst/deploy-dispatcher/internal/errors"
)

// PullRequestPayload is the pull_request webhook body forwarded by the Git
// host. The forwarder may enrich the standard payload with the list of files
// the pull request touched; when absent, the dispatcher backfills it from
// the Git host's API.
type PullRequestPayload struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Merged         bool   `json:"merged"`
		MergeCommitSHA string `json:"merge_commit_sha"`
		Base           struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	ChangedFiles []string `json:"changed_files"`
}

// ParsePullRequest decodes a pull_request webhook body into a DeploymentEvent.
// Only "closed" actions carry deployment meaning; any other action is rejected
// so callers can distinguish malformed payloads from uninteresting ones.
func ParsePullRequest(body []byte) (DeploymentEvent, error) {
	var payload PullRequestPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return DeploymentEvent{}, fmt.Errorf("%w: %v", errors.ErrInvalidWebhookPayload, err)
	}

	if payload.Action != "closed" {
		return DeploymentEvent{}, fmt.Errorf("%w: action %q, expected \"closed\"",
			errors.ErrInvalidWebhookPayload, payload.Action)
	}

	return DeploymentEvent{
		Repo:         payload.Repository.FullName,
		Number:       payload.Number,
		Merged:       payload.PullRequest.Merged,
		TargetBranch: payload.PullRequest.Base.Ref,
		CommitSHA:    payload.PullRequest.MergeCommitSHA,
		ChangedPaths: payload.ChangedFiles,
	}, nil
}
