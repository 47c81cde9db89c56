package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ssh"
)

type fakeSecrets struct {
	value string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(f.value),
	}, nil
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(block))
}

func TestFetchRawPEMSecret(t *testing.T) {
	keyPEM := testPrivateKeyPEM(t)
	service := NewSSHKeyServiceWithAPI(&fakeSecrets{value: keyPEM})

	keyPath, cleanup, err := service.Fetch(context.Background(), "deploy-dispatcher/main/ssh-key")
	assert.NoError(t, err)

	info, err := os.Stat(keyPath)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	written, err := os.ReadFile(keyPath)
	assert.NoError(t, err)
	assert.Equal(t, keyPEM, string(written))

	cleanup()
	_, err = os.Stat(keyPath)
	assert.True(t, os.IsNotExist(err), "cleanup should remove the key file")
}

func TestFetchRotatorManagedSecret(t *testing.T) {
	keyPEM := testPrivateKeyPEM(t)
	doc, err := json.Marshal(map[string]string{
		"private_key": keyPEM,
		"public_key":  "ssh-ed25519 AAAA",
		"created_at":  "2026-01-01T00:00:00Z",
	})
	assert.NoError(t, err)
	service := NewSSHKeyServiceWithAPI(&fakeSecrets{value: string(doc)})

	keyPath, cleanup, err := service.Fetch(context.Background(), "deploy-dispatcher/main/ssh-key")
	assert.NoError(t, err)
	defer cleanup()

	written, err := os.ReadFile(keyPath)
	assert.NoError(t, err)
	assert.Equal(t, keyPEM, string(written))
}

func TestFetchRejectsInvalidKeyMaterial(t *testing.T) {
	service := NewSSHKeyServiceWithAPI(&fakeSecrets{value: "definitely not a key"})

	_, _, err := service.Fetch(context.Background(), "deploy-dispatcher/main/ssh-key")
	assert.Error(t, err)
}
