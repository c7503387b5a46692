package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	pkgerrors "github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/cmn/cos"
)

// S3Config configures an S3-compatible endpoint (AWS S3, MinIO, Ceph RGW).
// Grounded on the launix-de-memcp pack repo's S3Factory shape.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // non-empty for MinIO/S3-compatible, empty for AWS
	Bucket          string
	ForcePathStyle  bool // required by MinIO
}

// S3Adapter implements Adapter over github.com/aws/aws-sdk-go-v2/service/s3.
type S3Adapter struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
}

func NewS3Adapter(cfg S3Config) *S3Adapter { return &S3Adapter{cfg: cfg} }

func (a *S3Adapter) ensureOpen(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	var opts []func(*config.LoadOptions) error
	if a.cfg.Region != "" {
		opts = append(opts, config.WithRegion(a.cfg.Region))
	}
	if a.cfg.AccessKeyID != "" && a.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AccessKeyID, a.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return pkgerrors.Wrap(err, "load aws config")
	}

	var s3Opts []func(*s3.Options)
	if a.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(a.cfg.Endpoint) })
	}
	if a.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	a.client = s3.NewFromConfig(awsCfg, s3Opts...)
	a.opened = true
	return nil
}

func (a *S3Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := a.ensureOpen(ctx); err != nil {
		return nil, err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, notFound(key)
		}
		return nil, pkgerrors.Wrapf(err, "get %s", key)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (a *S3Adapter) Put(ctx context.Context, key string, data []byte) error {
	if err := a.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "put %s", key)
	}
	return nil
}

// Append is a read-modify-write with last-writer-wins, per the design:
// the object store has no native append, so a logical append reads the
// current bytes (treating absence as empty), concatenates, and overwrites.
func (a *S3Adapter) Append(ctx context.Context, key string, data []byte) error {
	cur, err := a.Get(ctx, key)
	if err != nil {
		if !cos.IsErrNotFound(err) {
			return err
		}
		cur = nil
	}
	buf := make([]byte, 0, len(cur)+len(data))
	buf = append(buf, cur...)
	buf = append(buf, data...)
	return a.Put(ctx, key, buf)
}

func (a *S3Adapter) List(ctx context.Context, prefix string) ([]string, error) {
	if err := a.ensureOpen(ctx); err != nil {
		return nil, err
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "list %s", prefix)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (a *S3Adapter) Delete(ctx context.Context, key string) error {
	if err := a.ensureOpen(ctx); err != nil {
		return err
	}
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "delete %s", key)
	}
	return nil
}
