// Package media stores notification images in Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"go.uber.org/zap"
)

// ErrDisabled is returned when no Cloudinary credentials are configured.
var ErrDisabled = errors.New("media uploads are disabled")

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary uploads images into one folder.
type Cloudinary struct {
	api    uploadAPI
	folder string
}

// NewCloudinary builds an uploader from a cloudinary:// URL.
func NewCloudinary(cloudinaryURL, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, folder: folder}, nil
}

// Upload stores r under name and returns the secure URL.
func (c *Cloudinary) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	resp, err := c.api.Upload(ctx, r, uploader.UploadParams{
		Folder:   c.folder,
		PublicID: publicID(name),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", errors.New("cloudinary upload: empty url")
	}
	zap.S().Infow("image uploaded", "public_id", resp.PublicID, "bytes", resp.Bytes)
	return resp.SecureURL, nil
}

func publicID(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader) (string, error) {
	return "", ErrDisabled
}

// Uploader is the common interface of Cloudinary and Disabled.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// New returns a Cloudinary uploader, or Disabled when cloudinaryURL is empty.
func New(cloudinaryURL, folder string) (Uploader, error) {
	if cloudinaryURL == "" {
		zap.S().Infow("cloudinary not configured, image uploads disabled")
		return Disabled{}, nil
	}
	return NewCloudinary(cloudinaryURL, folder)
}
