package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, ".", cfg.Storage.Path)
	assert.True(t, cfg.Storage.MmapOrDefault())
	assert.Equal(t, "none", cfg.Storage.Compression)
	assert.Equal(t, "weights.wpk", cfg.Cache.Filename)
	assert.Equal(t, "sfp", cfg.Compress.Default)
	assert.Equal(t, int64(16), cfg.Storage.S3.PartSizeMB)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weightpack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: local
  path: cache
  mmap: false
  compression: zstd
cache:
  filename: gemma.wpk
  checksums: true
compress:
  default: nuq
  tensors:
    embed: bf16
    norm: f32
pool:
  workers: 3
resources:
  io_limit_mb_per_sec: 200
log:
  format: json
metrics:
  listen: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(dir, "cache"), cfg.Storage.Path)
	assert.False(t, cfg.Storage.MmapOrDefault())
	assert.Equal(t, "zstd", cfg.Storage.Compression)
	assert.Equal(t, "gemma.wpk", cfg.Cache.Filename)
	assert.True(t, cfg.Cache.Checksums)
	assert.Equal(t, "bf16", cfg.Compress.RepresentationFor("embed"))
	assert.Equal(t, "nuq", cfg.Compress.RepresentationFor("ffw"))
	assert.Equal(t, 3, cfg.Pool.Workers)
	assert.Equal(t, int64(200), cfg.Resources.IOLimitMBPerSec)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("storage: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want string
	}{
		{"backend", "storage: {backend: ftp}", "storage.backend"},
		{"minio endpoint", "storage: {backend: minio, bucket: b}", "storage.minio.endpoint"},
		{"s3 bucket", "storage: {backend: s3}", "storage.bucket"},
		{"compression", "storage: {compression: gzip}", "storage.compression"},
		{"representation", "compress: {default: int4}", "compress.default"},
		{"tensor override", "compress: {tensors: {w: q8}}", "compress.tensors[w]"},
		{"workers", "pool: {workers: -1}", "pool.workers"},
		{"format", "log: {format: xml}", "log.format"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.yaml))
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvMinIOEndpoint:  "localhost:9000",
		EnvMinIOAccessKey: "minioadmin",
		EnvMinIOSecretKey: "secret",
		EnvBucket:         "weights",
		EnvWorkers:        "7",
		EnvLogLevel:       "debug",
	}
	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, func(k string) string { return env[k] }))

	assert.Equal(t, "localhost:9000", cfg.Storage.MinIO.Endpoint)
	assert.Equal(t, "minioadmin", cfg.Storage.MinIO.AccessKey)
	assert.Equal(t, "secret", cfg.Storage.MinIO.SecretKey)
	assert.Equal(t, "weights", cfg.Storage.Bucket)
	assert.Equal(t, 7, cfg.Pool.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)

	env[EnvWorkers] = "many"
	require.Error(t, ApplyEnv(cfg, func(k string) string { return env[k] }))
}
