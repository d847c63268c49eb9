package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const LatestName = "latest.png"

// Record describes one successful generation.
type Record struct {
	ID            string
	Prompt        string
	Seed          string
	Steps         int
	GuidanceScale float64
	Images        []string
	Created       time.Time
}

// Metadata is stored alongside each archived image. The prompt is query
// escaped because object metadata travels in HTTP headers.
func (r Record) Metadata() map[string]string {
	return map[string]string{
		"id":       r.ID,
		"prompt":   url.QueryEscape(r.Prompt),
		"seed":     r.Seed,
		"steps":    strconv.Itoa(r.Steps),
		"guidance": strconv.FormatFloat(r.GuidanceScale, 'f', -1, 64),
		"created":  r.Created.UTC().Format(time.RFC3339),
	}
}

// Archiver keeps a copy of inline generated images. Images returned as URLs
// are already hosted upstream and are skipped. A zero Archiver is disabled.
type Archiver struct {
	Uploader    Uploader
	Invalidator Invalidator
}

func NewArchiver(i *do.Injector) (*Archiver, error) {
	bucket := do.MustInvokeNamed[string](i, "archive_bucket")
	dir := do.MustInvokeNamed[string](i, "archive_dir")
	distribution := do.MustInvokeNamed[string](i, "distribution")

	a := &Archiver{}
	switch {
	case bucket != "":
		a.Uploader = &S3Uploader{Client: do.MustInvoke[*s3.Client](i), Bucket: bucket}
	case dir != "":
		a.Uploader = &FileUploader{Dir: dir}
	}
	if a.Uploader != nil && distribution != "" {
		a.Invalidator = &CloudFrontInvalidator{Client: do.MustInvoke[*cloudfront.Client](i), Distribution: distribution}
	}
	return a, nil
}

func (a *Archiver) Enabled() bool {
	return a != nil && a.Uploader != nil
}

func (a *Archiver) Archive(ctx context.Context, rec Record) error {
	if !a.Enabled() {
		return nil
	}
	log := log.FromContextOrDiscard(ctx).WithGroup("archive").With("id", rec.ID)

	inline := lo.Filter(rec.Images, func(img string, _ int) bool {
		return strings.HasPrefix(img, image.DataURIPrefix)
	})
	if len(inline) == 0 {
		log.Debug("nothing to archive")
		return nil
	}

	metadata := rec.Metadata()
	var uploads []UploadParams
	var errs []error
	for idx, img := range inline {
		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(img, image.DataURIPrefix))
		if err != nil {
			errs = append(errs, fmt.Errorf("image %d: %w", idx, err))
			continue
		}
		name := rec.ID + ".png"
		if len(inline) > 1 {
			name = rec.ID + "_" + strconv.Itoa(idx) + ".png"
		}
		uploads = append(uploads, UploadParams{
			Name:        name,
			Data:        data,
			ContentType: "image/png",
			Metadata:    metadata,
		})
	}
	if len(uploads) == 0 {
		return errors.Join(errs...)
	}
	uploads = append(uploads, UploadParams{
		Name:        LatestName,
		Data:        uploads[0].Data,
		ContentType: "image/png",
		Metadata:    metadata,
	})

	log.Info("archiving images", "count", len(uploads))
	group, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		u := u
		group.Go(func() error {
			return a.Uploader.Upload(gctx, u)
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Join(append(errs, err)...)
	}

	if a.Invalidator != nil {
		if err := a.Invalidator.Invalidate(ctx, []string{"/" + LatestName}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
