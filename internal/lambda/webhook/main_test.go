package main

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"github.com/teamfirst/deploy-dispatcher/internal/dao/rundao"
	"github.com/teamfirst/deploy-dispatcher/internal/dispatcher"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
)

type fakeService struct {
	result *dispatcher.Result
	err    error
	events []event.DeploymentEvent
}

func (f *fakeService) Dispatch(ctx context.Context, e event.DeploymentEvent, startAt int) (*dispatcher.Result, error) {
	f.events = append(f.events, e)
	return f.result, f.err
}

const mergedPayload = `{
	"action": "closed",
	"number": 42,
	"pull_request": {
		"merged": true,
		"merge_commit_sha": "abc1234",
		"base": {"ref": "main"}
	},
	"repository": {"full_name": "teamfirst/data-pipeline"},
	"changed_files": ["dags/new_dag.py"]
}`

func TestHandleWebhookDeploys(t *testing.T) {
	service := &fakeService{
		result: &dispatcher.Result{
			Eligible: true,
			RunID:    rundao.NewID(rundao.NewPK("teamfirst/data-pipeline", "main"), "2HFj3kLmNoPqRsTuVwXy"),
		},
	}
	handler := NewHandler(service)

	resp, err := handler.HandleWebhook(context.Background(),
		events.APIGatewayProxyRequest{Body: mergedPayload})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "deployed")

	assert.Len(t, service.events, 1)
	assert.Equal(t, "teamfirst/data-pipeline", service.events[0].Repo)
	assert.True(t, service.events[0].Merged)
}

func TestHandleWebhookIneligibleIsOK(t *testing.T) {
	service := &fakeService{result: &dispatcher.Result{Eligible: false}}
	handler := NewHandler(service)

	resp, err := handler.HandleWebhook(context.Background(),
		events.APIGatewayProxyRequest{Body: mergedPayload})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, "not eligible")
}

func TestHandleWebhookBadPayload(t *testing.T) {
	service := &fakeService{}
	handler := NewHandler(service)

	resp, err := handler.HandleWebhook(context.Background(),
		events.APIGatewayProxyRequest{Body: `{"action": "opened"}`})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, service.events)
}

func TestHandleWebhookDispatchFailure(t *testing.T) {
	service := &fakeService{
		result: &dispatcher.Result{Eligible: true},
		err:    errors.New("rsync failed"),
	}
	handler := NewHandler(service)

	resp, err := handler.HandleWebhook(context.Background(),
		events.APIGatewayProxyRequest{Body: mergedPayload})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, resp.Body, "rsync failed")
}
