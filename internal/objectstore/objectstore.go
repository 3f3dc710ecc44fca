// Package objectstore uploads profile media and returns public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/metrics"
)

// Bucket names.
const (
	BucketVideos         = "dancer-videos"
	BucketCertifications = "certifications"
)

// Object is one upload request.
type Object struct {
	Bucket      string
	Path        string
	Data        []byte
	ContentType string
	// Upsert overwrites an existing object at Path.
	Upsert bool
	// AccessToken authenticates as the uploading user where the backend
	// applies per-user policies.
	AccessToken string
}

// Store is a blob store with public retrieval URLs.
type Store interface {
	Upload(ctx context.Context, obj Object) error
	PublicURL(bucket, objectPath string) string
}

// Rule is the local admission check for one kind of upload.
type Rule struct {
	Kind     string
	Bucket   string
	MaxBytes int64
	// Accept reports whether a content type is allowed.
	Accept func(contentType string) bool
}

var (
	// VideoRule admits any video/* up to 50 MiB.
	VideoRule = Rule{
		Kind:     "video",
		Bucket:   BucketVideos,
		MaxBytes: 50 << 20,
		Accept: func(ct string) bool {
			return strings.HasPrefix(ct, "video/")
		},
	}

	// CertificationRule admits PDF, JPEG and PNG up to 10 MiB.
	CertificationRule = Rule{
		Kind:     "certification",
		Bucket:   BucketCertifications,
		MaxBytes: 10 << 20,
		Accept: func(ct string) bool {
			switch ct {
			case "application/pdf", "image/jpeg", "image/jpg", "image/png":
				return true
			}
			return false
		},
	}
)

// Check validates size and content type without touching any store.
func (r Rule) Check(size int64, contentType string) error {
	if size > r.MaxBytes {
		return svcerrors.PayloadTooLarge(r.MaxBytes)
	}
	if !r.Accept(mediaType(contentType)) {
		return svcerrors.UnsupportedMediaType(contentType)
	}
	return nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// ObjectPath returns "<userID>/<unixMillis>.<ext>", taking ext from filename.
func ObjectPath(userID string, now time.Time, filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	name := fmt.Sprintf("%d", now.UnixMilli())
	if ext != "" {
		name += "." + ext
	}
	return userID + "/" + name
}

// File is an incoming upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader applies a Rule and then stores the file.
type Uploader struct {
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewUploader creates an uploader over store. m may be nil.
func NewUploader(store Store, m *metrics.Metrics) *Uploader {
	return &Uploader{store: store, metrics: m, now: time.Now}
}

// Upload checks f against rule, stores it under the user's folder with
// upsert enabled and returns the public URL.
func (u *Uploader) Upload(ctx context.Context, rule Rule, userID, accessToken string, f File) (string, error) {
	if err := rule.Check(f.Size, f.ContentType); err != nil {
		u.record(rule.Kind, false)
		return "", err
	}

	data, err := httputil.ReadAllStrict(f.Body, rule.MaxBytes)
	if err != nil {
		u.record(rule.Kind, false)
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return "", svcerrors.PayloadTooLarge(rule.MaxBytes)
		}
		return "", fmt.Errorf("read upload: %w", err)
	}

	objectPath := ObjectPath(userID, u.now(), f.Name)
	err = u.store.Upload(ctx, Object{
		Bucket:      rule.Bucket,
		Path:        objectPath,
		Data:        data,
		ContentType: mediaType(f.ContentType),
		Upsert:      true,
		AccessToken: accessToken,
	})
	if err != nil {
		u.record(rule.Kind, false)
		return "", fmt.Errorf("upload %s: %w", rule.Kind, err)
	}

	u.record(rule.Kind, true)
	return u.store.PublicURL(rule.Bucket, objectPath), nil
}

func (u *Uploader) record(kind string, ok bool) {
	if u.metrics != nil {
		u.metrics.RecordUpload(kind, ok)
	}
}
