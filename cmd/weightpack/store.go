package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/weightpack/internal/config"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/storage/minio"
	"github.com/hupe1980/weightpack/storage/s3"
)

// openStore builds the configured backend, wrapped for compression if set.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Backend {
	case "local":
		store = storage.NewLocalStore(cfg.Path, storage.WithMmap(cfg.MmapOrDefault()))
	case "minio":
		store, err = openMinIO(cfg)
	case "s3":
		store, err = openS3(ctx, cfg)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	codec, err := storage.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if codec != storage.CodecNone {
		store = storage.NewCompressedStore(store, codec, 0)
	}
	return store, nil
}

func openMinIO(cfg config.StorageConfig) (storage.Store, error) {
	client, err := miniogo.New(cfg.MinIO.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return minio.NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

func openS3(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	upload := s3.DefaultUploadConfig()
	upload.PartSize = cfg.S3.PartSizeMB << 20
	upload.Concurrency = cfg.S3.Concurrency
	return s3.NewStore(client, cfg.Bucket, cfg.Prefix, s3.WithUploadConfig(upload)), nil
}
