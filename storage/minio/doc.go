// Package minio provides a storage.Store backed by MinIO or any other
// S3-compatible object store, using the official MinIO Go client.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniostore.NewStore(client, "models", "gemma/")
//	loader, err := weightpack.NewCacheLoader(ctx, store, "2b-it-sfp.sbs")
//
// Blob reads issue one ranged GET per blob, so ReadAll parallelism maps
// directly onto concurrent requests. Uploads stream through PutObject with
// unknown length (multipart under the hood).
package minio
