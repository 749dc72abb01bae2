package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/civicvoice/backend/internal/logging"
)

const PendingPrefix = "pending/"

// MediaStore holds user uploads. Objects land under pending/ and are promoted
// to their final path once accepted.
type MediaStore interface {
	Metadata(ctx context.Context, bucket, name string) (map[string]string, error)
	// Promote moves a pending object to its final path and returns the
	// public download URL.
	Promote(ctx context.Context, bucket, name string, metadata map[string]string) (string, error)
	Delete(ctx context.Context, bucket, name string) error
}

type GCSMedia struct {
	gcs *storage.Client
}

// NewGCSMedia creates a storage client once at startup.
func NewGCSMedia(ctx context.Context) (*GCSMedia, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "media: storage client")
	}
	return &GCSMedia{gcs: client}, nil
}

func (m *GCSMedia) Close() error {
	return m.gcs.Close()
}

func (m *GCSMedia) Metadata(ctx context.Context, bucket, name string) (map[string]string, error) {
	attrs, err := m.gcs.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "media: attrs %s", name)
	}
	return attrs.Metadata, nil
}

func (m *GCSMedia) Promote(ctx context.Context, bucket, name string, metadata map[string]string) (string, error) {
	log := logging.Component("media")
	b := m.gcs.Bucket(bucket)
	src := b.Object(name)
	finalName := strings.TrimPrefix(name, PendingPrefix)
	dst := b.Object(finalName)

	// Uploads may need a moment to finalize before the object is readable.
	var attrs *storage.ObjectAttrs
	var err error
	maxRetries := 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		attrs, err = src.Attrs(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrObjectNotExist) && attempt < maxRetries-1 {
			backoff := time.Duration(attempt+1) * 500 * time.Millisecond
			log.WithField("object", name).WithField("attempt", attempt+1).Debugf("object not found yet, retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}
		return "", errors.Wrap(err, "media: source attrs")
	}

	token := uuid.NewString()
	md := map[string]string{}
	for k, v := range attrs.Metadata {
		md[k] = v
	}
	for k, v := range metadata {
		md[k] = v
	}
	md["moderation"] = "approved"
	md["firebaseStorageDownloadTokens"] = token

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return "", errors.Wrap(err, "media: copy")
	}
	if _, err := dst.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: md}); err != nil {
		return "", errors.Wrap(err, "media: update metadata")
	}
	if err := src.Delete(ctx); err != nil {
		return "", errors.Wrap(err, "media: delete pending")
	}

	log.WithField("from", name).WithField("to", finalName).Info("promoted upload")
	return DownloadURL(bucket, finalName, token), nil
}

func (m *GCSMedia) Delete(ctx context.Context, bucket, name string) error {
	err := m.gcs.Bucket(bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Wrapf(err, "media: delete %s", name)
	}
	return nil
}

// DownloadURL builds the token-authorized public URL of a storage object.
func DownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
