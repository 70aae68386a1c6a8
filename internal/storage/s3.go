package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientConfig holds configuration for S3Client
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client stages source documents from S3-compatible storage (e.g. RustFS)
// into a local cache so parsers and the page raster store can read them
// as plain files.
type S3Client struct {
	client *s3.Client
	bucket string
}

// NewS3Client creates a new S3Client with the given configuration
func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			if cfg.Endpoint != "" {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		},
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// FetchObject downloads one object into destDir, preserving the key's base
// name, and returns the local path. Existing files are overwritten.
func (c *S3Client) FetchObject(ctx context.Context, key, destDir string) (string, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer output.Body.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	localPath := filepath.Join(destDir, filepath.Base(key))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, output.Body); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", localPath, err)
	}

	return localPath, nil
}

// FetchPrefix downloads every object under a prefix into destDir, keeping
// the key structure below the prefix. Used to stage a document together
// with its pre-rendered page rasters.
func (c *S3Client) FetchPrefix(ctx context.Context, prefix, destDir string) ([]string, error) {
	var localPaths []string

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}

			rel := strings.TrimPrefix(key, prefix)
			if strings.HasPrefix(rel, "/") {
				rel = strings.TrimPrefix(rel, "/")
			} else {
				// The prefix names an object: keep its base name so
				// sidecars like <doc>.layout.json land next to it.
				rel = path.Base(prefix) + rel
			}
			localPath := filepath.Join(destDir, filepath.FromSlash(rel))

			if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create cache dir: %w", err)
			}

			output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(c.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to get object %s: %w", key, err)
			}

			out, err := os.Create(localPath)
			if err != nil {
				output.Body.Close()
				return nil, fmt.Errorf("failed to create local file: %w", err)
			}
			_, copyErr := io.Copy(out, output.Body)
			output.Body.Close()
			out.Close()
			if copyErr != nil {
				return nil, fmt.Errorf("failed to write %s: %w", localPath, copyErr)
			}

			localPaths = append(localPaths, localPath)
		}
	}

	return localPaths, nil
}

// PutObject uploads a local file under the given key.
func (c *S3Client) PutObject(ctx context.Context, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}
