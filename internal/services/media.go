package services

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader re-hosts a platform attachment and returns its permanent URL.
type Uploader interface {
	Upload(ctx context.Context, sourceURL, userID string) (string, error)
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

// Upload lets Cloudinary fetch sourceURL directly; platform attachment URLs
// expire, so listings must not reference them.
func (u *CloudinaryUploader) Upload(ctx context.Context, sourceURL, userID string) (string, error) {
	res, err := u.cld.Upload.Upload(ctx, sourceURL, uploader.UploadParams{
		Folder:       u.folder + "/" + userID,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}
