package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry   = 15 * time.Minute
	defaultDownloadExpiry = 5 * time.Minute
	maxImageSize          = 10 << 20
)

var (
	errNoSigner      = errors.New("storage: signer is required")
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errBadImageType  = errors.New("storage: content type must be an image")
	errBadFileName   = errors.New("storage: file name contains invalid characters")
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// allowed upload content types for catalog imagery
var imageContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/avif": {},
}

// ImageURLClient issues short-lived signed URLs for catalog imagery stored in
// Cloud Storage. Admin clients upload directly to the bucket and persist the
// returned object path as the entity's image reference.
type ImageURLClient struct {
	signer Signer
	bucket string
	scheme storage.SigningScheme
	now    func() time.Time
}

// ImageURLOption customises client behaviour.
type ImageURLOption func(*ImageURLClient)

// WithSigningScheme overrides the signing scheme (defaults to V4).
func WithSigningScheme(scheme storage.SigningScheme) ImageURLOption {
	return func(c *ImageURLClient) {
		if scheme != 0 {
			c.scheme = scheme
		}
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ImageURLOption {
	return func(c *ImageURLClient) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewImageURLClient constructs a signed URL client bound to the assets bucket.
func NewImageURLClient(signer Signer, bucket string, opts ...ImageURLOption) (*ImageURLClient, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}

	client := &ImageURLClient{
		signer: signer,
		bucket: bucket,
		scheme: storage.SigningSchemeV4,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignedURLResult describes a generated signed URL.
type SignedURLResult struct {
	URL       string
	Method    string
	Object    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// ProductImagePath composes the object key for a product image.
func ProductImagePath(productID, fileName string) (string, error) {
	return imagePath("products", productID, fileName)
}

// CategoryImagePath composes the object key for a category image.
func CategoryImagePath(categoryID, fileName string) (string, error) {
	return imagePath("categories", categoryID, fileName)
}

func imagePath(prefix, id, fileName string) (string, error) {
	id = strings.TrimSpace(id)
	fileName = strings.TrimSpace(fileName)
	if id == "" || fileName == "" {
		return "", errInvalidObject
	}
	if !fileNamePattern.MatchString(id) || !fileNamePattern.MatchString(fileName) {
		return "", errBadFileName
	}
	return path.Join(prefix, id, fileName), nil
}

// SignUpload returns a PUT URL for uploading an image to the given object.
// The signature pins the content type and caps the object size.
func (c *ImageURLClient) SignUpload(ctx context.Context, object, contentType string) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if _, ok := imageContentTypes[contentType]; !ok {
		return SignedURLResult{}, errBadImageType
	}

	expiresAt := c.now().Add(defaultUploadExpiry)
	sizeRange := fmt.Sprintf("0,%d", maxImageSize)
	urlOpts := &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expiresAt,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(c.bucket, object, urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "PUT",
		Object:    object,
		ExpiresAt: expiresAt,
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
	}, nil
}

// SignDownload returns a GET URL for serving a stored image.
func (c *ImageURLClient) SignDownload(ctx context.Context, object string) (SignedURLResult, error) {
	if c == nil {
		return SignedURLResult{}, errNoSigner
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}

	expiresAt := c.now().Add(defaultDownloadExpiry)
	urlOpts := &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         c.scheme,
		Method:         "GET",
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}

	signedURL, err := storage.SignedURL(c.bucket, object, urlOpts)
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign download url: %w", err)
	}

	return SignedURLResult{
		URL:       signedURL,
		Method:    "GET",
		Object:    object,
		ExpiresAt: expiresAt,
	}, nil
}
