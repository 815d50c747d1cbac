// Package mirror publishes downloaded artifacts to an S3 bucket.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dhgen/internal/config"
	"dhgen/internal/logging"
	"dhgen/internal/services"
)

const component = "mirror"

// PutObjectAPI is the slice of the S3 client the mirror needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Mirror uploads files under s3://bucket/prefix/<job id>/.
type Mirror struct {
	api    PutObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// Object is one published file.
type Object struct {
	Path string
	Key  string
	URI  string
}

// New builds a mirror from configuration using the default AWS credential
// chain, with optional region and profile overrides.
func New(ctx context.Context, cfg config.Mirror, logger *slog.Logger) (*Mirror, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "mirror.bucket is empty", nil)
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "init", "load AWS config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
	})
	return NewWithAPI(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewWithAPI builds a mirror around an existing client.
func NewWithAPI(api PutObjectAPI, bucket, prefix string, logger *slog.Logger) *Mirror {
	return &Mirror{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.NewComponentLogger(logger, component),
	}
}

// Key returns the object key for a job's file.
func (m *Mirror) Key(jobID, filename string) string {
	return path.Join(m.prefix, jobID, filepath.Base(filename))
}

// Publish uploads every file in paths. All files are attempted; failures are
// joined into the returned error alongside the objects that did upload.
func (m *Mirror) Publish(ctx context.Context, jobID string, paths []string) ([]Object, error) {
	var (
		objects []Object
		errs    []error
	)
	for _, p := range paths {
		obj, err := m.put(ctx, jobID, p)
		if err != nil {
			errs = append(errs, err)
			logging.WarnWithContext(m.logger, "artifact mirror upload failed", "mirror_upload_failed",
				logging.String(logging.FieldJobID, jobID),
				logging.String("path", p),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check AWS credentials and bucket permissions"),
				logging.String(logging.FieldImpact, "local copy is unaffected"))
			continue
		}
		objects = append(objects, obj)
		m.logger.Info("artifact mirrored",
			logging.String(logging.FieldJobID, jobID),
			logging.String("uri", obj.URI))
	}
	if len(errs) > 0 {
		return objects, services.Wrap(services.ErrUpload, component, "publish",
			fmt.Sprintf("%d of %d files not mirrored", len(errs), len(paths)), errors.Join(errs...))
	}
	return objects, nil
}

func (m *Mirror) put(ctx context.Context, jobID, localPath string) (Object, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	key := m.Key(jobID, localPath)
	in := &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if info, err := file.Stat(); err == nil {
		in.ContentLength = aws.Int64(info.Size())
	}
	if contentType := mime.TypeByExtension(filepath.Ext(localPath)); contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := m.api.PutObject(ctx, in); err != nil {
		return Object{}, fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}
	return Object{Path: localPath, Key: key, URI: "s3://" + m.bucket + "/" + key}, nil
}
