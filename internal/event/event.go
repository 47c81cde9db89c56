package event

import (
	"strings"
)

// Watched path prefixes. A pull request must touch at least one of these
// before any deployment runs.
const (
	PrefixDags     = "dags/"
	PrefixGlueJobs = "glue_jobs/"
	PrefixDbt      = "team1_dbt/"
)

// DefaultBranch is the integration branch that deployments track.
const DefaultBranch = "main"

// WatchedPrefixes returns the path prefixes that qualify a merge for deployment,
// in dispatch order.
func WatchedPrefixes() []string {
	return []string{PrefixDags, PrefixDbt, PrefixGlueJobs}
}

// DeploymentEvent represents a closed pull request against the integration
// branch. It is produced by the webhook intake and consumed exactly once by
// the dispatcher.
type DeploymentEvent struct {
	Repo         string   // Repository full name (owner/name)
	Number       int      // Pull request number
	Merged       bool     // True when the PR was merged rather than closed
	TargetBranch string   // Base branch of the pull request
	CommitSHA    string   // Merge commit SHA, if any
	ChangedPaths []string // Paths touched by the pull request
}

// Eligible reports whether this event should trigger a deployment: the pull
// request was merged into branch and touched at least one watched prefix.
func (e DeploymentEvent) Eligible(branch string) bool {
	if !e.Merged || e.TargetBranch != branch {
		return false
	}
	return len(e.TouchedPrefixes()) > 0
}

// TouchedPrefixes returns the watched prefixes intersected by the event's
// changed paths, in dispatch order. Unwatched paths are ignored.
func (e DeploymentEvent) TouchedPrefixes() []string {
	var touched []string
	for _, prefix := range WatchedPrefixes() {
		if e.Touches(prefix) {
			touched = append(touched, prefix)
		}
	}
	return touched
}

// Touches reports whether any changed path falls under the given prefix.
func (e DeploymentEvent) Touches(prefix string) bool {
	for _, path := range e.ChangedPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
