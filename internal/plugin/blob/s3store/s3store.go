// Package s3store registers the "s3" blob store. The bucket is the bridge's
// configured message container and is created on startup if absent.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/chirino/solace-bridge/internal/config"
	registryblob "github.com/chirino/solace-bridge/internal/registry/blob"
)

func init() {
	registryblob.Register(registryblob.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

func load(ctx context.Context, cfg *config.Config) (registryblob.Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3store: SOLACE_BRIDGE_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3store: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	store := &S3BlobStore{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: strings.Trim(strings.TrimSpace(cfg.S3Prefix), "/"),
	}
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// ensureBucket creates the container when it does not already exist.
func (s *S3BlobStore) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("s3store: head bucket %q: %w", s.bucket, err)
	}
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &s.bucket}); err != nil {
		return fmt.Errorf("s3store: create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// s3Key applies the optional prefix; stored blob names never include it.
func (s *S3BlobStore) s3Key(name string) string {
	if s.prefix != "" {
		return s.prefix + "/" + name
	}
	return name
}

func (s *S3BlobStore) Put(ctx context.Context, name string, data []byte) error {
	key := s.s3Key(name)
	contentType := "application/json"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          strings.NewReader(string(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3store: put object %q: %w", name, err)
	}
	return nil
}

func (s *S3BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.s3Key(name)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, registryblob.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: get object %q: %w", name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read object %q: %w", name, err)
	}
	return data, nil
}

func (s *S3BlobStore) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	type entry struct {
		name     string
		modified int64
	}
	var entries []entry
	listPrefix := s.s3Key(prefix)
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &listPrefix,
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("s3store: list objects: %w", err)
		}
		for _, obj := range out.Contents {
			name := aws.ToString(obj.Key)
			if s.prefix != "" {
				name = strings.TrimPrefix(name, s.prefix+"/")
			}
			var modified int64
			if obj.LastModified != nil {
				modified = obj.LastModified.UnixMilli()
			}
			entries = append(entries, entry{name: name, modified: modified})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	// Newest first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].modified > entries[j].modified })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, name string) error {
	key := s.s3Key(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("s3store: delete object %q: %w", name, err)
	}
	return nil
}

var _ registryblob.Store = (*S3BlobStore)(nil)
