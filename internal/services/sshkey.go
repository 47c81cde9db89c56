package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SecretsAPI is the subset of the Secrets Manager client the key service uses.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SSHKeyService materializes the deploy SSH private key from Secrets Manager
// onto disk for the rsync transport. The key lives only for the duration of a
// dispatch run.
type SSHKeyService struct {
	client SecretsAPI
}

// NewSSHKeyService creates a new SSH key service
func NewSSHKeyService(client *secretsmanager.Client) *SSHKeyService {
	return &SSHKeyService{client: client}
}

// NewSSHKeyServiceWithAPI creates a key service from any SecretsAPI, for tests.
func NewSSHKeyServiceWithAPI(client SecretsAPI) *SSHKeyService {
	return &SSHKeyService{client: client}
}

// Fetch retrieves the private key named by secretName, verifies it parses as
// an SSH private key, and writes it to a file readable only by this process.
// The returned cleanup removes the file.
func (s *SSHKeyService) Fetch(ctx context.Context, secretName string) (keyPath string, cleanup func(), err error) {
	logger := zerolog.Ctx(ctx)

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to get SSH key secret %s: %w", secretName, err)
	}
	if result.SecretString == nil {
		return "", nil, fmt.Errorf("SSH key secret %s has no string value", secretName)
	}

	keyMaterial := extractKeyMaterial(*result.SecretString)
	if err := ValidatePrivateKey(keyMaterial); err != nil {
		return "", nil, fmt.Errorf("SSH key secret %s: %w", secretName, err)
	}

	f, err := os.CreateTemp("", "deploy-key-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create key file: %w", err)
	}
	keyPath = f.Name()

	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(keyPath)
		return "", nil, fmt.Errorf("failed to set key file permissions: %w", err)
	}
	if _, err := f.Write(keyMaterial); err != nil {
		f.Close()
		os.Remove(keyPath)
		return "", nil, fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(keyPath)
		return "", nil, fmt.Errorf("failed to close key file: %w", err)
	}

	logger.Debug().Str("secret", secretName).Msg("SSH key materialized")

	return keyPath, func() {
		if err := os.Remove(keyPath); err != nil {
			logger.Warn().Err(err).Str("path", keyPath).Msg("Failed to remove key file")
		}
	}, nil
}

// extractKeyMaterial accepts either a raw PEM secret or the JSON document
// written by the rotation lambda, which carries the key under "private_key".
func extractKeyMaterial(secret string) []byte {
	if strings.HasPrefix(strings.TrimSpace(secret), "{") {
		var doc struct {
			PrivateKey string `json:"private_key"`
		}
		if err := json.Unmarshal([]byte(secret), &doc); err == nil && doc.PrivateKey != "" {
			return []byte(doc.PrivateKey)
		}
	}
	return []byte(secret)
}

// ValidatePrivateKey confirms the material parses as an SSH private key.
func ValidatePrivateKey(keyMaterial []byte) error {
	if _, err := ssh.ParsePrivateKey(keyMaterial); err != nil {
		return fmt.Errorf("invalid SSH private key: %w", err)
	}
	return nil
}
