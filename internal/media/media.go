// Package media validates uploaded images and stores them in object storage.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DefaultMaxBytes bounds an upload when no limit is configured.
const DefaultMaxBytes = 5 << 20

var (
	ErrNotImage   = errors.New("file is not an image")
	ErrTooLarge   = errors.New("file exceeds the upload limit")
	ErrBadDataURI = errors.New("malformed data uri")
)

// Backend stores an object and returns the URL it is served from.
type Backend interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
}

// Uploader checks content and hands images to a Backend.
type Uploader struct {
	backend  Backend
	maxBytes int64
	now      func() time.Time
}

// NewUploader returns an Uploader. maxBytes <= 0 selects DefaultMaxBytes.
func NewUploader(backend Backend, maxBytes int64) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Uploader{backend: backend, maxBytes: maxBytes, now: time.Now}
}

// Upload reads an image from r and stores it under folder.
func (u *Uploader) Upload(ctx context.Context, folder string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return u.put(ctx, folder, data)
}

// UploadDataURI decodes a base64 data URI such as "data:image/png;base64,..."
// and stores the image under folder.
func (u *Uploader) UploadDataURI(ctx context.Context, folder, uri string) (string, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", ErrBadDataURI
	}
	if !strings.HasPrefix(header, "data:image/") {
		return "", ErrNotImage
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > u.maxBytes+2 {
		return "", ErrTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadDataURI, err)
	}
	return u.put(ctx, folder, data)
}

func (u *Uploader) put(ctx context.Context, folder string, data []byte) (string, error) {
	if int64(len(data)) > u.maxBytes {
		return "", ErrTooLarge
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return "", ErrNotImage
	}

	key := u.objectKey(folder, mime.Extension())
	url, err := u.backend.Put(ctx, key, mime.String(), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return url, nil
}

func (u *Uploader) objectKey(folder, ext string) string {
	d := u.now().UTC()
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = "uploads"
	}
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s", folder, d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

func publicURL(base, bucket, key string) string {
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + key
}
