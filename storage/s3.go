package storage

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	log "github.com/sirupsen/logrus"
)

// S3BlobStore is an implementation of BlobStore backed by AWS S3. Each
// bucket of the BlobStore is an S3 bucket.
type S3BlobStore struct {
	client *s3.S3
}

func NewS3BlobStore(opts ...Option) (*S3BlobStore, error) {
	var o awsOptions
	for _, opt := range opts {
		opt(&o)
	}
	sess, err := o.session()
	if err != nil {
		return nil, err
	}
	return &S3BlobStore{client: s3.New(sess)}, nil
}

func (s *S3BlobStore) Get(ctx context.Context, bucket, filename string) ([]byte, error) {
	output, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(filename),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, filename, ErrNotFound)
		}
		return nil, err
	}
	defer func() {
		if err := output.Body.Close(); err != nil {
			log.WithFields(log.Fields{
				"op":     "get",
				"bucket": bucket,
				"key":    filename,
			}).Warning("Could not close response body")
		}
	}()
	return ioutil.ReadAll(output.Body)
}

func (s *S3BlobStore) Put(ctx context.Context, bucket, filename string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(filename),
		Body:   bytes.NewReader(data),
	})
	return err
}

// Delete relies on S3 treating the deletion of a missing key as a success.
func (s *S3BlobStore) Delete(ctx context.Context, bucket, filename string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(filename),
	})
	if e, ok := err.(awserr.Error); ok && e.Code() == s3.ErrCodeNoSuchKey {
		return nil
	}
	return err
}

func (s *S3BlobStore) List(ctx context.Context, bucket string, fn func(string) error) error {
	var fnErr error
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, object := range page.Contents {
			if object.Key == nil {
				continue
			}
			if fnErr = fn(*object.Key); fnErr != nil {
				return false
			}
		}
		return true
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func isS3NotFound(err error) bool {
	if rfErr, ok := err.(awserr.RequestFailure); ok {
		if rfErr.StatusCode() == http.StatusNotFound {
			return true
		}
	}
	if e, ok := err.(awserr.Error); ok {
		return e.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}
