package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
	"github.com/kirillkom/workspace-ingest/internal/infrastructure/resilience"
)

// deleteBatchLimit is the DeleteObjects per-request key cap.
const deleteBatchLimit = 1000

type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBucket    bool
}

type Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	region   string
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Storage, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	st := &Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		executor: executor,
	}
	if cfg.CreateBucket {
		if err := st.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *Storage) Put(ctx context.Context, key string, body io.Reader, opts ports.PutOptions) error {
	if !opts.Overwrite {
		exists, err := s.exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return domain.WrapError(domain.ErrBlobExists, "put blob", fmt.Errorf("key=%s", key))
		}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	// The body is consumed on the first attempt, so uploads are never retried.
	return s.execute(ctx, "s3.put", func(ctx context.Context) error {
		if _, err := s.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3 upload: %w", err)
		}
		return nil
	}, classifyNoRetry)
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	var out *s3.GetObjectOutput
	err := s.execute(ctx, "s3.get", func(ctx context.Context) error {
		var err error
		out, err = s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	}, classifyS3Error)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, domain.WrapError(domain.ErrBlobNotFound, "open blob", fmt.Errorf("key=%s", key))
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return out.Body, nil
}

func (s *Storage) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchLimit {
		end := min(start+deleteBatchLimit, len(keys))
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		err := s.execute(ctx, "s3.delete", func(ctx context.Context) error {
			out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return err
			}
			if len(out.Errors) > 0 {
				failed := make([]string, 0, len(out.Errors))
				for _, e := range out.Errors {
					failed = append(failed, fmt.Sprintf("%s (%s)", aws.ToString(e.Key), aws.ToString(e.Code)))
				}
				return fmt.Errorf("s3 delete failed for %s", strings.Join(failed, ", "))
			}
			return nil
		}, classifyS3Error)
		if err != nil {
			return fmt.Errorf("s3 delete objects: %w", err)
		}
	}
	return nil
}

func (s *Storage) List(ctx context.Context, prefix string, opts ports.ListOptions) ([]ports.BlobObject, error) {
	out := make([]ports.BlobObject, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		var page *s3.ListObjectsV2Output
		err := s.execute(ctx, "s3.list", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		}, classifyNoRetry)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, ports.BlobObject{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}
	return opts.Apply(out), nil
}

func (s *Storage) exists(ctx context.Context, key string) (bool, error) {
	err := s.execute(ctx, "s3.head", func(ctx context.Context) error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	}, classifyS3Error)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head object: %w", err)
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (s *Storage) execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier resilience.ErrorClassifier,
) error {
	var err error
	if s.executor != nil {
		err = s.executor.Execute(ctx, operation, fn, classifier)
	} else {
		err = fn(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}
