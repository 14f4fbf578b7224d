package storage

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
)

// Option configures how the AWS-backed stores reach AWS.
type Option func(*awsOptions)

type awsOptions struct {
	profile  string
	region   string
	endpoint string

	accessKeyID     string
	secretAccessKey string
}

// WithProfile selects a profile from the shared credentials file.
func WithProfile(value string) Option {
	return func(o *awsOptions) {
		o.profile = value
	}
}

func WithRegion(value string) Option {
	return func(o *awsOptions) {
		o.region = value
	}
}

// WithEndpoint points the client at an AWS-compatible service, e.g.,
// LocalStack or MinIO. S3 requests then use path-style addressing.
func WithEndpoint(value string) Option {
	return func(o *awsOptions) {
		o.endpoint = value
	}
}

// WithStaticCredentials overrides the shared credentials file.
func WithStaticCredentials(accessKeyID, secretAccessKey string) Option {
	return func(o *awsOptions) {
		o.accessKeyID = accessKeyID
		o.secretAccessKey = secretAccessKey
	}
}

func (o *awsOptions) session() (*session.Session, error) {
	config := &aws.Config{}
	if o.region != "" {
		config.Region = aws.String(o.region)
	}
	if o.endpoint != "" {
		config.Endpoint = aws.String(o.endpoint)
		config.S3ForcePathStyle = aws.Bool(true)
	}
	switch {
	case o.accessKeyID != "":
		config.Credentials = credentials.NewStaticCredentials(o.accessKeyID, o.secretAccessKey, "")
	case o.profile != "":
		config.Credentials = credentials.NewSharedCredentials("", o.profile)
	}
	return session.NewSession(config)
}
