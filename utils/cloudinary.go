package utils

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// ImageStore hosts event images and hands back their public URLs.
type ImageStore interface {
	Upload(ctx context.Context, file io.Reader, filename string) (string, error)
	Destroy(ctx context.Context, imageURL string) error
}

// CloudinaryImages uploads into a single Cloudinary folder.
type CloudinaryImages struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ ImageStore = (*CloudinaryImages)(nil)

func NewCloudinaryImages(cloudName, apiKey, apiSecret, folder string) (*CloudinaryImages, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config error: %v", err)
	}
	if folder == "" {
		folder = "events"
	}
	return &CloudinaryImages{cld: cld, folder: folder}, nil
}

func (c *CloudinaryImages) Upload(ctx context.Context, file io.Reader, filename string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	uploadResp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder: c.folder,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %v", filename, err)
	}
	if uploadResp.Error.Message != "" {
		return "", fmt.Errorf("upload %s: %s", filename, uploadResp.Error.Message)
	}
	return uploadResp.SecureURL, nil
}

// Destroy deletes an image given its full delivery URL.
func (c *CloudinaryImages) Destroy(ctx context.Context, imageURL string) error {
	publicID, err := PublicID(imageURL)
	if err != nil {
		return fmt.Errorf("could not extract public ID: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return nil
}

// PublicID extracts the Cloudinary public ID (folder and file name without
// extension) from a delivery URL such as
// https://res.cloudinary.com/demo/image/upload/v1234567890/events/abc123.jpg
func PublicID(imageURL string) (string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(strings.Trim(parsedURL.Path, "/"), "/")
	upload := -1
	for i, p := range parts {
		if p == "upload" {
			upload = i
			break
		}
	}
	if upload < 0 || upload == len(parts)-1 {
		return "", fmt.Errorf("invalid cloudinary URL format")
	}

	rest := parts[upload+1:]
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}
	last := rest[len(rest)-1]
	rest[len(rest)-1] = strings.TrimSuffix(last, path.Ext(last))
	return path.Join(rest...), nil
}

func isVersion(seg string) bool {
	if len(seg) < 2 || seg[0] != 'v' {
		return false
	}
	for _, r := range seg[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
