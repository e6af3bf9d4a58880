package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.opentelemetry.io/otel/attribute"

	"github.com/d60-Lab/gin-blog/config"
)

// Cloudinary uploads data URIs through the Cloudinary upload API.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cfg config.CloudinaryConfig) (*Cloudinary, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary: cloud_name, api_key and api_secret are required")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	if cfg.UploadPrefix != "" {
		cld.Config.API.UploadPrefix = strings.TrimRight(cfg.UploadPrefix, "/")
	}
	return &Cloudinary{cld: cld, folder: cfg.Folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte, mimeType string) (img Image, err error) {
	ctx, span := startSpan(ctx, "cloudinary.upload",
		attribute.String("image.mime", mimeType), attribute.Int("image.bytes", len(data)))
	defer func() { endSpan(span, err) }()

	res, err := c.cld.Upload.Upload(ctx, EncodeDataURI(data, mimeType), uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return Image{}, newUploadError(0, "", err)
	}
	if res.Error.Message != "" {
		return Image{}, newUploadError(0, res.Error.Message, nil)
	}
	if res.SecureURL == "" {
		return Image{}, newUploadError(0, "upstream returned no secure url", nil)
	}
	return Image{URL: res.SecureURL, Ref: res.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, ref string) (err error) {
	ctx, span := startSpan(ctx, "cloudinary.destroy", attribute.String("image.ref", ref))
	defer func() { endSpan(span, err) }()

	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: ref})
	if err != nil {
		return err
	}
	if res.Error.Message != "" {
		return errors.New(res.Error.Message)
	}
	return nil
}
