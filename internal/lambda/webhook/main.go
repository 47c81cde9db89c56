package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/teamfirst/deploy-dispatcher/internal/di"
	"github.com/teamfirst/deploy-dispatcher/internal/dispatcher"
	apperrors "github.com/teamfirst/deploy-dispatcher/internal/errors"
	"github.com/teamfirst/deploy-dispatcher/internal/event"
)

// dispatchService is the slice of dispatcher.Service the handler needs.
type dispatchService interface {
	Dispatch(ctx context.Context, e event.DeploymentEvent, startAt int) (*dispatcher.Result, error)
}

type Handler struct {
	service dispatchService
}

func NewHandler(service dispatchService) *Handler {
	return &Handler{service: service}
}

// HandleWebhook consumes a pull_request webhook delivered through API
// Gateway. Malformed payloads are a client error; an ineligible event is a
// successful no-op; a transfer failure is a server error so the delivery
// shows up as failed on the Git host.
func (h *Handler) HandleWebhook(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := zerolog.Ctx(ctx)

	e, err := event.ParsePullRequest([]byte(request.Body))
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidWebhookPayload) {
			logger.Warn().Err(err).Msg("Rejecting webhook delivery")
			return response(http.StatusBadRequest, err.Error()), nil
		}
		return response(http.StatusInternalServerError, err.Error()), nil
	}

	result, err := h.service.Dispatch(ctx, e, 0)
	if err != nil {
		logger.Error().Err(err).Msg("Dispatch failed")
		return response(http.StatusInternalServerError, err.Error()), nil
	}

	if !result.Eligible {
		return response(http.StatusOK, "not eligible, no deployment"), nil
	}
	return response(http.StatusOK, fmt.Sprintf("deployed, run %s", result.RunID)), nil
}

func response(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       body,
	}
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "webhook").Logger()

	// Get ENV to determine which tables and parameters to use
	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	workspace := os.Getenv("WORKSPACE")
	if workspace == "" {
		workspace = "/mnt/checkout"
	}

	container, err := di.New(env, di.WithWorkspace(workspace))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DI container")
		os.Exit(1)
	}

	service := di.MustGet[*dispatcher.Service](container)
	handler := NewHandler(service)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleWebhook(ctx, request)
		}
		lambda.Start(wrappedHandler)
		return
	}

	app := &cli.App{
		Name:  "webhook",
		Usage: "Simulate a pull_request webhook delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "payload",
				Usage:    "Path to a pull_request webhook payload JSON file",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			body, err := os.ReadFile(c.String("payload"))
			if err != nil {
				return err
			}

			ctx := logger.WithContext(context.Background())
			resp, err := handler.HandleWebhook(ctx, events.APIGatewayProxyRequest{Body: string(body)})
			if err != nil {
				return err
			}
			fmt.Printf("%d %s\n", resp.StatusCode, resp.Body)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
