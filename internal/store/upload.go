package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/bananaconsole/internal/log"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// Invalidator drops cached copies of paths from a CDN in front of the archive.
type Invalidator interface {
	Invalidate(ctx context.Context, paths []string) error
}

// FileUploader writes archived images into Dir, for running without S3.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("file")
	log.Info("writing", "file", params.Name, "dir", u.Dir)
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(u.Dir, params.Name), params.Data, 0o600)
}
