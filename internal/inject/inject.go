package inject

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/bananaconsole/internal/client"
	appconfig "github.com/dmorgan81/bananaconsole/internal/config"
	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/dmorgan81/bananaconsole/internal/feed"
	"github.com/dmorgan81/bananaconsole/internal/handler"
	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/page"
	"github.com/dmorgan81/bananaconsole/internal/param"
	"github.com/dmorgan81/bananaconsole/internal/server"
	"github.com/dmorgan81/bananaconsole/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// Setup registers every component. Providers are lazy, so AWS clients are
// only built when an archive, a feed or a parameter store key needs them.
func Setup(ctx context.Context, cfg appconfig.Config) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue(injector, log)
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, &http.Client{Timeout: cfg.Timeout})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)
	do.Provide[*param.Resolver](injector, param.NewResolver)
	do.Provide[image.Generator](injector, image.NewNanoBananaGenerator)
	do.Provide[*store.Archiver](injector, store.NewArchiver)
	do.Provide[*feed.Generator](injector, feed.NewS3Generator)
	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[console.Generator](injector, client.NewClient)
	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[*server.Server](injector, server.NewServer)

	do.ProvideNamedValue[string](injector, "api_base", cfg.APIBase)
	do.ProvideNamedValue[string](injector, "api_key", cfg.APIKey)
	do.ProvideNamedValue[string](injector, "api_key_param", cfg.APIKeyParam)
	// Nothing listens on a port under Lambda, so consoles call the handler
	// directly.
	do.ProvideNamedValue[string](injector, "proxy_url", lo.Ternary(cfg.Lambda, "", cfg.ProxyURL))
	do.ProvideNamedValue[string](injector, "archive_bucket", cfg.ArchiveBucket)
	do.ProvideNamedValue[string](injector, "archive_dir", cfg.ArchiveDir)
	do.ProvideNamedValue[string](injector, "archive_public_url", cfg.ArchivePublicURL)
	do.ProvideNamedValue[string](injector, "distribution", cfg.Distribution)

	return injector
}
