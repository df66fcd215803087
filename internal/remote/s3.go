package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"ticketkeeper/internal/logging"
)

// S3Config holds connection settings for the backing object store
// (AWS S3 or anything S3-compatible such as MinIO).
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// S3Store implements Adapter over an S3 bucket.
//
// A logical file name maps to the key space "<prefix>/<name>/<uuid>", so the
// same name can legitimately resolve to several objects — exactly the
// duplicate shape the orchestrator self-heals. Transient faults are retried
// per call with a short fibonacci backoff; classification into the error
// taxonomy happens here so callers only ever see sentinel kinds.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	log     logging.Logger
}

const (
	maxCallRetries = 2
	backoffBase    = 250 * time.Millisecond
	presignTTL     = 15 * time.Minute
	imagePrefix    = "images"
)

// NewS3Store builds the S3-backed adapter.
func NewS3Store(ctx context.Context, cfg S3Config, log logging.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		log:     log.With("component", "s3store"),
	}, nil
}

// withRetry runs op, retrying transient failures a bounded number of times.
// The returned error is already classified.
func (s *S3Store) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(maxCallRetries, retry.NewFibonacci(backoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		classified := classify(err)
		if transient(classified) {
			return retry.RetryableError(classified)
		}
		return classified
	})
}

func (s *S3Store) EnsureContainer(ctx context.Context) (string, error) {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ensure container: %w", err)
	}
	return s.prefix, nil
}

func (s *S3Store) FindByName(ctx context.Context, name string) (string, error) {
	ids, err := s.FindAllByName(ctx, name)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (s *S3Store) FindAllByName(ctx context.Context, name string) ([]string, error) {
	keyPrefix := path.Join(s.prefix, name) + "/"

	type object struct {
		key      string
		modified time.Time
	}
	var found []object

	err := s.withRetry(ctx, func(ctx context.Context) error {
		found = found[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(keyPrefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				o := object{key: aws.ToString(obj.Key)}
				if obj.LastModified != nil {
					o.modified = *obj.LastModified
				}
				found = append(found, o)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", name, err)
	}

	// freshest first, so the orchestrator keeps the most recent copy when
	// collapsing duplicates
	sort.Slice(found, func(i, j int) bool { return found[i].modified.After(found[j].modified) })

	ids := make([]string, len(found))
	for i, o := range found {
		ids[i] = o.key
	}
	return ids, nil
}

func (s *S3Store) Create(ctx context.Context, containerID, name string, body []byte) (string, error) {
	key := path.Join(containerID, name, uuid.NewString())
	if err := s.put(ctx, key, body); err != nil {
		return "", fmt.Errorf("create %q: %w", name, err)
	}
	s.log.Debug(ctx, "created remote file", "key", key)
	return key, nil
}

func (s *S3Store) Update(ctx context.Context, fileID string, body []byte) error {
	if err := s.put(ctx, fileID, body); err != nil {
		return fmt.Errorf("update %q: %w", fileID, err)
	}
	return nil
}

func (s *S3Store) put(ctx context.Context, key string, body []byte) error {
	return s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		})
		return err
	})
}

func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fileID),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", fileID, err)
	}
	return nil
}

func (s *S3Store) Read(ctx context.Context, fileID string) ([]byte, error) {
	var body []byte
	err := s.withRetry(ctx, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fileID),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		body, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", fileID, err)
	}
	return body, nil
}

func (s *S3Store) PresignPut(ctx context.Context) (string, string, error) {
	blobID := path.Join(s.prefix, imagePrefix, uuid.NewString())

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobID),
	}, s3.WithPresignExpires(presignTTL))
	if err != nil {
		return "", "", fmt.Errorf("presign put: %w", classify(err))
	}

	return blobID, req.URL, nil
}
