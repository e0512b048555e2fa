package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/campusops/portal/internal/aws"
	"github.com/campusops/portal/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestLocalStack runs S3 and SES in a shared localstack container.
type TestLocalStack struct {
	Container *localstack.LocalStackContainer
	Endpoint  string
}

func NewTestLocalStack(t *testing.T) *TestLocalStack {
	ctx := context.Background()

	container, err := localstack.Run(ctx,
		"localstack/localstack:3.0",
		testcontainers.WithReuseByName("campus-portal-test-localstack"),
		testcontainers.WithEnv(map[string]string{"SERVICES": "s3,ses"}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("Ready.").
					WithOccurrence(1).
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("4566/tcp").
					WithStartupTimeout(60*time.Second),
			),
		),
	)
	require.NoError(t, err, "Failed to start LocalStack container")

	endpoint, err := container.PortEndpoint(ctx, "4566/tcp", "http")
	require.NoError(t, err, "Failed to get LocalStack endpoint")

	return &TestLocalStack{
		Container: container,
		Endpoint:  endpoint,
	}
}

// AWSConfig points the application's AWS services at the container.
func (ls *TestLocalStack) AWSConfig(bucket string) config.AWSConfig {
	return config.AWSConfig{
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		EndpointURL:     ls.Endpoint,
		Bucket:          bucket,
		FromEmail:       "no-reply@campus.edu",
	}
}

func (ls *TestLocalStack) NewS3Service(t *testing.T, bucket string) *aws.S3Service {
	t.Helper()
	ctx := context.Background()

	svc, err := aws.NewS3Service(ctx, ls.AWSConfig(bucket))
	require.NoError(t, err)
	require.NoError(t, svc.EnsureBucket(ctx))
	return svc
}

func (ls *TestLocalStack) NewEmailService(t *testing.T) *aws.EmailService {
	t.Helper()
	ctx := context.Background()

	svc, err := aws.NewEmailService(ctx, ls.AWSConfig(""))
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmailIdentity(ctx))
	return svc
}

// Cleanup removes verified SES identities so tests start unverified.
func (ls *TestLocalStack) Cleanup(t *testing.T) {
	ctx := context.Background()

	awsCfg, err := aws.LoadAWSConfig(ctx, ls.AWSConfig(""))
	if err != nil {
		t.Logf("Failed to load AWS config: %v", err)
		return
	}
	client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		o.BaseEndpoint = &ls.Endpoint
	})

	listOut, err := client.ListIdentities(ctx, &ses.ListIdentitiesInput{})
	if err != nil {
		t.Logf("Failed to list identities: %v", err)
		return
	}
	for _, identity := range listOut.Identities {
		if _, err := client.DeleteIdentity(ctx, &ses.DeleteIdentityInput{Identity: &identity}); err != nil {
			t.Logf("Failed to delete identity %s: %v", identity, err)
		}
	}
}

func (ls *TestLocalStack) Close() {
	if ls.Container != nil {
		ls.Container.Terminate(context.Background())
	}
}
