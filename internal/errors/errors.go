package errors

import "errors"

var (
	ErrDeployHostRequired    = errors.New("DEPLOY_HOST configuration is required")
	ErrSSHKeySecretRequired  = errors.New("SSH key secret name is required")
	ErrBucketRequired        = errors.New("S3 bucket name is required")
	ErrInvalidWebhookPayload = errors.New("invalid pull request webhook payload")
	ErrMissingProjectFile    = errors.New("dbt_project.yml not found in dbt directory")
	ErrRunNotFound           = errors.New("deployment run not found")
)
