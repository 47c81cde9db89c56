package di

import (
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/teamfirst/deploy-dispatcher/internal/dao/rundao"
	"github.com/teamfirst/deploy-dispatcher/internal/dispatcher"
	"github.com/teamfirst/deploy-dispatcher/internal/services"
)

// ProvideDispatchService assembles the dispatch service. Run history can be
// disabled for local runs with DISABLE_RUN_HISTORY=true.
func ProvideDispatchService(
	config *services.Config,
	keys *services.SSHKeyService,
	identity *services.IdentityService,
	s3Client *s3.Client,
	dao *rundao.DAO,
	workspace Workspace,
	dryRun DryRun,
) *dispatcher.Service {
	var recorder dispatcher.RunRecorder
	if os.Getenv("DISABLE_RUN_HISTORY") != "true" {
		recorder = dao
	}

	// Without a token, dispatch relies on changed_files in the payload.
	var files dispatcher.FileLister
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		files = services.NewGitHubService(token)
	}

	return dispatcher.NewService(dispatcher.ServiceInput{
		Config:    config,
		Keys:      keys,
		Identity:  identity,
		S3Client:  s3Client,
		Recorder:  recorder,
		Files:     files,
		Workspace: string(workspace),
		DryRun:    bool(dryRun),
	})
}
