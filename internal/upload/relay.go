// Package upload forwards in-memory image buffers to an external image host
// and returns a durable https URL.
package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/d60-Lab/gin-blog/config"
)

// Image a hosted upload. Ref identifies it on the host for later deletion.
type Image struct {
	URL string
	Ref string
}

// Relay is implemented by every image-host driver.
type Relay interface {
	Upload(ctx context.Context, data []byte, mimeType string) (Image, error)
	Delete(ctx context.Context, ref string) error
}

// UploadError reports an upstream failure. Status is the upstream HTTP status
// when known, otherwise http.StatusBadGateway.
type UploadError struct {
	Status  int
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image upload failed (%d): %s", e.Status, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Err }

func newUploadError(status int, msg string, err error) *UploadError {
	if status == 0 {
		status = http.StatusBadGateway
	}
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &UploadError{Status: status, Message: msg, Err: err}
}

// EncodeDataURI packs bytes and their MIME type into a data URI.
func EncodeDataURI(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI is the inverse of EncodeDataURI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data uri")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", fmt.Errorf("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data uri: %w", err)
	}
	return data, mimeType, nil
}

// New builds the driver selected by cfg.Driver.
func New(ctx context.Context, cfg config.UploadConfig) (Relay, error) {
	switch cfg.Driver {
	case "cloudinary":
		return NewCloudinary(cfg.Cloudinary)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported upload driver %q", cfg.Driver)
	}
}
