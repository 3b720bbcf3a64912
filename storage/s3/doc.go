// Package s3 provides a storage.Store backed by Amazon S3 (aws-sdk-go-v2).
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
//	if err != nil { ... }
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "models/")
//
// # Features
//
//   - Ranged GETs: each blob of a blob store file is fetched on its own
//   - Multipart streaming uploads through the transfer manager
//   - CRC32C upload integrity (on by default)
//   - Automatic pagination for listing
package s3
