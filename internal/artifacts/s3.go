package artifacts

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/modelregistry/pkg/errors"
	"github.com/inferloop/modelregistry/pkg/interfaces"
)

// S3Config holds configuration for S3 artifact storage
type S3Config struct {
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`
	Endpoint        string        `mapstructure:"endpoint"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	DisableSSL      bool          `mapstructure:"disable_ssl"`
	Prefix          string        `mapstructure:"prefix"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	StorageClass    string        `mapstructure:"storage_class"`
}

// S3Store implements ArtifactStore on Amazon S3 or an S3-compatible service
type S3Store struct {
	config *S3Config
	client s3iface.S3API
	logger *logrus.Logger
}

// NewS3Store creates an S3 artifact store with a session built from config
func NewS3Store(config *S3Config, logger *logrus.Logger) (*S3Store, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}

	awsConfig := &aws.Config{
		Region:     aws.String(config.Region),
		MaxRetries: aws.Int(config.MaxRetries),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKeyID,
			config.SecretAccessKey,
			config.SessionToken,
		)
	}
	// Custom endpoint for S3-compatible services
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(config.ForcePathStyle)
	}
	if config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.NewStorageConnectionError("s3", config.Bucket, err)
	}

	return NewS3StoreWithClient(config, s3.New(sess), logger), nil
}

// NewS3StoreWithClient creates an S3 artifact store around an existing client
func NewS3StoreWithClient(config *S3Config, client s3iface.S3API, logger *logrus.Logger) *S3Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Store{
		config: config,
		client: client,
		logger: logger,
	}
}

var _ interfaces.ArtifactStore = (*S3Store)(nil)

// Ping checks that the bucket is reachable
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return errors.NewStorageConnectionError("s3", s.config.Bucket, err)
	}
	return nil
}

// Put uploads content unless an object with the same digest exists
func (s *S3Store) Put(ctx context.Context, content []byte) (string, error) {
	ref := RefFor(content)

	exists, err := s.Exists(ctx, ref)
	if err != nil {
		return "", err
	}
	if exists {
		return ref, nil
	}

	digest, _ := parseRef(ref)
	key := s.generateKey(digest)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]*string{
			"artifact-ref": aws.String(ref),
		},
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", errors.WrapStorageError(err, "put", "s3")
	}

	s.logger.WithFields(logrus.Fields{
		"bucket":       s.config.Bucket,
		"key":          key,
		"artifact_ref": ref,
		"size":         len(content),
	}).Debug("Uploaded model artifact")

	return ref, nil
}

// Get downloads and verifies an artifact
func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	digest, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(digest)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, notFound(ref)
		}
		return nil, errors.WrapStorageError(err, "get", "s3")
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.WrapStorageError(err, "get", "s3")
	}
	if err := verify(ref, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Exists checks for the artifact object with HeadObject
func (s *S3Store) Exists(ctx context.Context, ref string) (bool, error) {
	digest, err := parseRef(ref)
	if err != nil {
		return false, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(digest)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.WrapStorageError(err, "exists", "s3")
	}
	return true, nil
}

// generateKey returns <prefix>/artifacts/<xx>/<digest>
func (s *S3Store) generateKey(digest string) string {
	key := path.Join("artifacts", digest[:2], digest)
	if s.config.Prefix != "" {
		key = path.Join(s.config.Prefix, key)
	}
	return key
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Timeout)
	}
	return context.WithCancel(ctx)
}

func isS3NotFound(err error) bool {
	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	if awsErr, ok := err.(awserr.Error); ok {
		switch awsErr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
