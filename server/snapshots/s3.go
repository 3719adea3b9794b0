package snapshots

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func newMinioClient(endpoint, region, accessKey, secretKey string) (*minio.Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("S3 endpoint is required")
	}
	// Remove http:// or https:// prefix if present
	cleanEndpoint := strings.TrimPrefix(endpoint, "http://")
	cleanEndpoint = strings.TrimPrefix(cleanEndpoint, "https://")
	useSSL := !strings.HasPrefix(endpoint, "http://")

	// Use credential chain if access key and secret key are not provided
	var creds *credentials.Credentials
	if accessKey != "" && secretKey != "" {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.FileMinioClient{},
			&credentials.IAM{},
		})
	}

	minioClient, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return minioClient, nil
}

// objectStore is the part of S3 the snapshot code needs.
type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PutFile(ctx context.Context, key, filePath string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Remove(ctx context.Context, key string) error
}

type bucket struct {
	client *minio.Client
	name   string
}

func newBucket(ctx context.Context, config Config) (*bucket, error) {
	client, err := newMinioClient(config.S3Endpoint, config.S3Region, config.S3AccessKey, config.S3SecretKey)
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, config.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", config.S3Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", config.S3Bucket)
	}
	return &bucket{client: client, name: config.S3Bucket}, nil
}

func (b *bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

func (b *bucket) PutFile(ctx context.Context, key, filePath string) error {
	_, err := b.client.FPutObject(ctx, b.name, key, filePath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return nil
}

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (b *bucket) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for object := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

func (b *bucket) Remove(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
