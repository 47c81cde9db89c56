package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/teamfirst/deploy-dispatcher/internal/errors"
)

// Config holds all dispatcher configuration values from Parameter Store
type Config struct {
	Branch           string // Integration branch deployments track (default "main")
	DeployHost       string // Remote host for DAG and dbt syncs
	SSHUser          string // Remote user for archive syncs
	SSHKeySecretName string // Secrets Manager secret holding the SSH private key
	DagsDeployPath   string // Remote path for Airflow DAG definitions
	DbtDeployPath    string // Remote path for dbt configuration
	S3Bucket         string // Bucket for Glue job scripts
	GluePrefix       string // Key prefix for Glue job scripts (default "glue/jobs")
	Region           string // Region the bucket lives in
}

// Validate checks that the configuration names every destination the fan-out
// dispatch needs. Missing values surface before any transfer starts.
func (c *Config) Validate() error {
	if c.DeployHost == "" {
		return errors.ErrDeployHostRequired
	}
	if c.SSHKeySecretName == "" {
		return errors.ErrSSHKeySecretRequired
	}
	if c.S3Bucket == "" {
		return errors.ErrBucketRequired
	}
	return nil
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all dispatcher configuration from Parameter Store
	GetConfig(ctx context.Context) (*Config, error)
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client *ssm.Client
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client *ssm.Client, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all dispatcher configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	path := fmt.Sprintf("/%s/deploy-dispatcher", s.env)

	// Use GetParametersByPath for efficient batch retrieval
	result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
		Path:           &path,
		Recursive:      boolPtr(true),
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters by path %s: %w", path, err)
	}

	params := make(map[string]string)
	for _, param := range result.Parameters {
		if param.Name != nil && param.Value != nil {
			params[*param.Name] = *param.Value
		}
	}

	s.mu.Lock()
	for k, v := range params {
		s.cache[k] = v
	}
	s.mu.Unlock()

	config := &Config{
		Branch:           params[fmt.Sprintf("/%s/deploy-dispatcher/branch", s.env)],
		DeployHost:       params[fmt.Sprintf("/%s/deploy-dispatcher/deploy-host", s.env)],
		SSHUser:          params[fmt.Sprintf("/%s/deploy-dispatcher/ssh-user", s.env)],
		SSHKeySecretName: params[fmt.Sprintf("/%s/deploy-dispatcher/ssh-key-secret-name", s.env)],
		DagsDeployPath:   params[fmt.Sprintf("/%s/deploy-dispatcher/dags-deploy-path", s.env)],
		DbtDeployPath:    params[fmt.Sprintf("/%s/deploy-dispatcher/dbt-deploy-path", s.env)],
		S3Bucket:         params[fmt.Sprintf("/%s/deploy-dispatcher/s3-bucket", s.env)],
		GluePrefix:       params[fmt.Sprintf("/%s/deploy-dispatcher/glue-prefix", s.env)],
		Region:           params[fmt.Sprintf("/%s/deploy-dispatcher/region", s.env)],
	}

	applyDefaults(config, s.env)
	return config, nil
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local runs without AWS connection
type EnvParameterStore struct {
	env string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env: env,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// GetConfig loads all dispatcher configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		Branch:           os.Getenv("DEPLOY_BRANCH"),
		DeployHost:       os.Getenv("DEPLOY_HOST"),
		SSHUser:          os.Getenv("SSH_USER"),
		SSHKeySecretName: os.Getenv("SSH_KEY_SECRET_NAME"),
		DagsDeployPath:   os.Getenv("DAGS_DEPLOY_PATH"),
		DbtDeployPath:    os.Getenv("DBT_DEPLOY_PATH"),
		S3Bucket:         os.Getenv("S3_BUCKET_NAME"),
		GluePrefix:       os.Getenv("GLUE_PREFIX"),
		Region:           os.Getenv("AWS_REGION"),
	}

	applyDefaults(config, e.env)
	return config, nil
}

func applyDefaults(config *Config, env string) {
	if config.Branch == "" {
		config.Branch = "main"
	}
	if config.GluePrefix == "" {
		config.GluePrefix = "glue/jobs"
	}
	if config.SSHUser == "" {
		config.SSHUser = "deploy"
	}
	if config.SSHKeySecretName == "" && config.DeployHost != "" {
		config.SSHKeySecretName = fmt.Sprintf("deploy-dispatcher/%s/ssh-key", env)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
