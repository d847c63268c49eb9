package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/store"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

type client interface {
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
}

// Generator renders the archive bucket as an RSS feed. Without a bucket it
// is disabled.
type Generator struct {
	client  client
	bucket  string
	baseURL string
}

func NewS3Generator(i *do.Injector) (*Generator, error) {
	bucket := do.MustInvokeNamed[string](i, "archive_bucket")
	if bucket == "" {
		return &Generator{}, nil
	}
	return &Generator{
		client:  do.MustInvoke[*s3.Client](i),
		bucket:  bucket,
		baseURL: strings.TrimSuffix(do.MustInvokeNamed[string](i, "archive_public_url"), "/"),
	}, nil
}

func (g *Generator) Enabled() bool {
	return g != nil && g.client != nil && g.bucket != ""
}

func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("feed").With("bucket", g.bucket)
	log.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "Nano Banana Pro",
		Description: "Images generated from the prompt console",
		Link:        &feeds.Link{Href: g.baseURL + "/"},
		Updated:     time.Now(),
	}

	pager := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
	})

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		objs := lo.Filter(page.Contents, func(o s3types.Object, _ int) bool {
			key := aws.ToString(o.Key)
			return strings.HasSuffix(key, ".png") && key != store.LatestName
		})

		for _, obj := range objs {
			obj := obj
			group.Go(func() error {
				out, err := g.client.HeadObject(gctx, &s3.HeadObjectInput{
					Bucket: aws.String(g.bucket),
					Key:    obj.Key,
				})
				if err != nil {
					return err
				}

				item := g.item(aws.ToString(obj.Key), out)
				mu.Lock()
				feed.Add(item)
				mu.Unlock()
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.Before(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}

func (g *Generator) item(key string, out *s3.HeadObjectOutput) *feeds.Item {
	meta := out.Metadata
	prompt, err := url.QueryUnescape(meta["prompt"])
	if err != nil {
		prompt = meta["prompt"]
	}

	updated := aws.ToTime(out.LastModified)
	if created, err := time.Parse(time.RFC3339, meta["created"]); err == nil {
		updated = created
	}

	return &feeds.Item{
		Id:          meta["id"],
		Title:       prompt,
		Description: fmt.Sprintf("seed %s, %s steps, guidance %s", lo.Ternary(meta["seed"] != "", meta["seed"], "auto"), meta["steps"], meta["guidance"]),
		Link:        &feeds.Link{Href: g.baseURL + "/" + key},
		Updated:     updated,
	}
}
