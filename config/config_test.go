package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndRequiredSecret(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("HASH_SECRET", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expire)
	assert.Equal(t, 10, cfg.Bcrypt.Cost)
	assert.Equal(t, "cloudinary", cfg.Upload.Driver)
	assert.False(t, cfg.Server.IsRelease())
}

func TestLoad_LegacyEnvNames(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("DATABASE", "postgres://blog@localhost/blog")
	t.Setenv("REQ_URL", "https://blog.example.com")
	t.Setenv("HASH_SECRET", "legacy")
	t.Setenv("CLOUD_NAME", "demo")
	t.Setenv("API_KEY", "key")
	t.Setenv("API_SECRET", "secret")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, ":8081", cfg.Server.Addr())
	assert.Equal(t, "postgres://blog@localhost/blog", cfg.Database.DSN)
	assert.Equal(t, "https://blog.example.com", cfg.CORS.AllowOrigin)
	assert.Equal(t, "legacy", cfg.JWT.Secret)
	assert.Equal(t, "demo", cfg.Upload.Cloudinary.CloudName)
	assert.Equal(t, "key", cfg.Upload.Cloudinary.APIKey)
	assert.Equal(t, "secret", cfg.Upload.Cloudinary.APISecret)
	assert.True(t, cfg.Server.IsRelease())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9000
database:
  driver: postgres
  dsn: host=db
jwt:
  secret: from-file
  expire: 1h
upload:
  driver: s3
  s3:
    bucket: covers
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("CONFIG_PATH", dir)
	t.Setenv("HASH_SECRET", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, time.Hour, cfg.JWT.Expire)
	assert.Equal(t, "s3", cfg.Upload.Driver)
	assert.Equal(t, "covers", cfg.Upload.S3.Bucket)
}

func TestValidate_UnknownDrivers(t *testing.T) {
	cfg := &Config{JWT: JWTConfig{Secret: "x"}, Database: DatabaseConfig{Driver: "mysql"}, Upload: UploadConfig{Driver: "s3"}}
	assert.Error(t, cfg.Validate())

	cfg.Database.Driver = "sqlite"
	cfg.Upload.Driver = "ftp"
	assert.Error(t, cfg.Validate())

	cfg.Upload.Driver = "cloudinary"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_S3RequiresHTTPSInRelease(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Mode: "release"},
		JWT:      JWTConfig{Secret: "x"},
		Database: DatabaseConfig{Driver: "sqlite"},
		Upload:   UploadConfig{Driver: "s3", S3: S3Config{Bucket: "covers", Endpoint: "http://localhost:9000"}},
	}
	assert.Error(t, cfg.Validate())

	cfg.Upload.S3.PublicBaseURL = "https://cdn.example.com"
	assert.NoError(t, cfg.Validate())

	cfg.Upload.S3 = S3Config{Bucket: "covers", Region: "us-east-1"}
	assert.NoError(t, cfg.Validate(), "default AWS host is https")

	cfg.Server.Mode = "debug"
	cfg.Upload.S3 = S3Config{Bucket: "covers", Endpoint: "http://localhost:9000"}
	assert.NoError(t, cfg.Validate())
}
