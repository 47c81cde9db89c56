package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog"
)

// STSAPI is the subset of the STS client the identity check uses.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// IdentityService verifies the cloud credentials before any transfer runs, so
// auth failures surface without touching remote state.
type IdentityService struct {
	client STSAPI
}

// NewIdentityService creates a new identity service
func NewIdentityService(client *sts.Client) *IdentityService {
	return &IdentityService{client: client}
}

// NewIdentityServiceWithAPI creates an identity service from any STSAPI, for tests.
func NewIdentityServiceWithAPI(client STSAPI) *IdentityService {
	return &IdentityService{client: client}
}

// Check calls GetCallerIdentity and logs the resolved principal.
func (s *IdentityService) Check(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	result, err := s.client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("cloud credential check failed: %w", err)
	}

	logger.Info().
		Str("account", aws.ToString(result.Account)).
		Str("arn", aws.ToString(result.Arn)).
		Msg("Cloud credentials verified")
	return nil
}
