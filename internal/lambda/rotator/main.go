package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/ssh"

	"github.com/teamfirst/deploy-dispatcher/internal/di"
)

// DeployKey is the secret document stored in Secrets Manager. PrivateKey is
// an OpenSSH PEM block; PublicKey is an authorized_keys line that must be
// installed on the deploy host before the rotation is finished.
type DeployKey struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	CreatedAt  string `json:"created_at"`
}

type RotationEvent struct {
	Step               string `json:"Step"`
	Token              string `json:"Token"`
	SecretId           string `json:"SecretId"`
	ClientRequestToken string `json:"ClientRequestToken"`
}

type Handler struct {
	client *secretsmanager.Client
}

func NewHandler(ctx context.Context) (*Handler, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Handler{
		client: secretsmanager.NewFromConfig(cfg),
	}, nil
}

func generateDeployKey() (DeployKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return DeployKey{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "deploy-dispatcher")
	if err != nil {
		return DeployKey{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return DeployKey{}, fmt.Errorf("failed to derive public key: %w", err)
	}

	return DeployKey{
		PrivateKey: string(pem.EncodeToMemory(block)),
		PublicKey:  string(ssh.MarshalAuthorizedKey(sshPub)),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func validateDeployKey(key DeployKey) error {
	signer, err := ssh.ParsePrivateKey([]byte(key.PrivateKey))
	if err != nil {
		return fmt.Errorf("private key does not parse: %w", err)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(key.PublicKey))
	if err != nil {
		return fmt.Errorf("public key does not parse: %w", err)
	}

	if signer.PublicKey().Type() != pub.Type() {
		return fmt.Errorf("public key type %s does not match private key type %s", pub.Type(), signer.PublicKey().Type())
	}

	return nil
}

func (h *Handler) HandleRotation(ctx context.Context, event RotationEvent) error {
	switch event.Step {
	case "createSecret":
		return h.createSecret(ctx, event)
	case "setSecret":
		return h.setSecret(ctx, event)
	case "testSecret":
		return h.testSecret(ctx, event)
	case "finishSecret":
		return h.finishSecret(ctx, event)
	default:
		return fmt.Errorf("unknown rotation step: %s", event.Step)
	}
}

func (h *Handler) createSecret(ctx context.Context, event RotationEvent) error {
	logger := zerolog.Ctx(ctx)

	key, err := generateDeployKey()
	if err != nil {
		return err
	}

	secretJSON, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	// The public key has to reach the deploy host's authorized_keys before
	// finishSecret promotes this version, so surface it in the logs.
	logger.Info().Str("public_key", key.PublicKey).Msg("Generated replacement deploy key")

	_, err = h.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:           &event.SecretId,
		SecretString:       stringPtr(string(secretJSON)),
		ClientRequestToken: &event.ClientRequestToken,
		VersionStages:      []string{"AWSPENDING"},
	})
	if err != nil {
		return fmt.Errorf("failed to put secret value: %w", err)
	}

	return nil
}

func (h *Handler) setSecret(ctx context.Context, event RotationEvent) error {
	// Installing the public key on the deploy host is handled by the host's
	// configuration management, which watches the AWSPENDING version.
	return nil
}

func (h *Handler) testSecret(ctx context.Context, event RotationEvent) error {
	output, err := h.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     &event.SecretId,
		VersionStage: stringPtr("AWSPENDING"),
	})
	if err != nil {
		return fmt.Errorf("failed to get pending secret: %w", err)
	}

	var key DeployKey
	if err := json.Unmarshal([]byte(*output.SecretString), &key); err != nil {
		return fmt.Errorf("pending secret is not valid JSON: %w", err)
	}

	if err := validateDeployKey(key); err != nil {
		return fmt.Errorf("pending deploy key is invalid: %w", err)
	}

	return nil
}

func (h *Handler) finishSecret(ctx context.Context, event RotationEvent) error {
	// Move AWSPENDING to AWSCURRENT
	_, err := h.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            &event.SecretId,
		VersionStage:        stringPtr("AWSCURRENT"),
		MoveToVersionId:     &event.ClientRequestToken,
		RemoveFromVersionId: stringPtr("AWSCURRENT"),
	})
	if err != nil {
		return fmt.Errorf("failed to update version stage: %w", err)
	}

	return nil
}

func stringPtr(s string) *string {
	return &s
}

func handleRotateCommand(c *cli.Context) error {
	logger := di.ProvideLogger().With().Str("lambda", "rotator").Logger()

	// Check if running in Lambda environment
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		ctx := context.Background()
		handler, err := NewHandler(ctx)
		if err != nil {
			return fmt.Errorf("failed to create handler: %w", err)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, event RotationEvent) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleRotation(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return nil
	}

	// CLI mode for local testing
	ctx := logger.WithContext(context.Background())
	handler, err := NewHandler(ctx)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	secretID := c.String("secret-id")
	clientRequestToken := fmt.Sprintf("manual-%d", time.Now().Unix())

	// Run each rotation step
	steps := []string{"createSecret", "setSecret", "testSecret", "finishSecret"}
	for _, step := range steps {
		event := RotationEvent{
			Step:               step,
			SecretId:           secretID,
			ClientRequestToken: clientRequestToken,
		}

		if err := handler.HandleRotation(ctx, event); err != nil {
			return fmt.Errorf("%s step failed: %w", step, err)
		}
	}

	fmt.Println("Rotation completed successfully")
	return nil
}

func handleCancelRotationCommand(c *cli.Context) error {
	ctx := context.Background()
	handler, err := NewHandler(ctx)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	secretID := c.String("secret-id")
	versionID := c.String("version-id")

	fmt.Printf("Cancelling pending rotation for secret: %s\n", secretID)

	// Remove AWSPENDING stage from the version
	_, err = handler.client.UpdateSecretVersionStage(ctx, &secretsmanager.UpdateSecretVersionStageInput{
		SecretId:            &secretID,
		VersionStage:        stringPtr("AWSPENDING"),
		RemoveFromVersionId: &versionID,
	})
	if err != nil {
		return fmt.Errorf("failed to remove AWSPENDING stage: %w", err)
	}

	fmt.Println("Successfully cancelled pending rotation")
	return nil
}

func main() {
	app := &cli.App{
		Name:           "rotator",
		Usage:          "Secrets Manager rotation function for the deploy SSH key",
		DefaultCommand: "rotate",
		Commands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "Manually trigger a rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID to rotate",
						Required: true,
						EnvVars:  []string{"SECRET_ID"},
					},
				},
				Action: handleRotateCommand,
			},
			{
				Name:  "cancel-rotation",
				Usage: "Cancel a pending rotation",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "secret-id",
						Usage:    "Secret ID with pending rotation",
						Required: true,
						EnvVars:  []string{"SECRET_ID"},
					},
					&cli.StringFlag{
						Name:     "version-id",
						Usage:    "Version ID of the pending rotation to cancel",
						Required: true,
					},
				},
				Action: handleCancelRotationCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
