package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
)

// S3Store uploads files to an S3 compatible bucket.
type S3Store struct {
	client   s3iface.S3API
	bucket   string
	endpoint string
	cdnURL   string
}

var _ core.FileStore = (*S3Store)(nil)

func NewS3Store(conf core.StorageConfig) (*S3Store, error) {
	awsConf := &aws.Config{
		Region:           aws.String(conf.Region),
		S3ForcePathStyle: aws.Bool(false),
	}
	if conf.AccessKey != "" {
		awsConf.Credentials = credentials.NewStaticCredentials(conf.AccessKey, conf.SecretKey, "")
	}
	if conf.Endpoint != "" {
		awsConf.Endpoint = aws.String(conf.Endpoint)
	}
	sess, err := session.NewSession(awsConf)
	if err != nil {
		return nil, errors.Wrap(err, "creating s3 session")
	}
	return newS3Store(s3.New(sess), conf), nil
}

func newS3Store(client s3iface.S3API, conf core.StorageConfig) *S3Store {
	return &S3Store{
		client:   client,
		bucket:   conf.Bucket,
		endpoint: strings.TrimPrefix(strings.TrimPrefix(conf.Endpoint, "https://"), "http://"),
		cdnURL:   strings.TrimRight(conf.CDNURL, "/"),
	}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", errors.Wrap(err, "reading upload")
		}
		body = bytes.NewReader(data)
	}

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", core.NewUpstreamUnavailableError("file storage", errors.Wrap(err, "uploading "+key))
	}
	return s.url(key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return core.NewUpstreamUnavailableError("file storage", errors.Wrap(err, "deleting "+key))
	}
	return nil
}

func (s *S3Store) url(key string) string {
	switch {
	case s.cdnURL != "":
		return fmt.Sprintf("%s/%s", s.cdnURL, key)
	case s.endpoint != "":
		return fmt.Sprintf("https://%s.%s/%s", s.bucket, s.endpoint, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
