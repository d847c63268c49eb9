package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmorgan81/bananaconsole/internal/api"
	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/param"
	"github.com/dmorgan81/bananaconsole/internal/store"
	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const SuccessMessage = "image generated successfully"

// Credential yields the upstream API key; "" means none is configured.
type Credential interface {
	Resolve(context.Context) (string, error)
}

func toImageParams(req api.GenerateRequest) image.Params {
	return image.Params{
		Prompt:         strings.TrimSpace(req.Prompt),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		GuidanceScale:  lo.FromPtrOr(req.GuidanceScale, api.DefaultGuidanceScale),
		Steps:          lo.FromPtrOr(req.Steps, api.DefaultSteps),
		Seed:           strings.TrimSpace(req.Seed),
	}
}

type Handler struct {
	generator image.Generator
	key       Credential
	archiver  *store.Archiver
	now       func() time.Time
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return New(
		do.MustInvoke[image.Generator](i),
		do.MustInvoke[*param.Resolver](i),
		do.MustInvoke[*store.Archiver](i),
	), nil
}

// New builds a Handler; archiver may be nil.
func New(generator image.Generator, key Credential, archiver *store.Archiver) *Handler {
	return &Handler{generator: generator, key: key, archiver: archiver, now: time.Now}
}

// Handle validates req, forwards it upstream and returns the normalized
// images. Every failure is an *Error.
func (h *Handler) Handle(ctx context.Context, req api.GenerateRequest) (api.GenerateResponse, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("handler")
	log.Info("handling generation request", "prompt", req.Prompt)

	if strings.TrimSpace(req.Prompt) == "" {
		return api.GenerateResponse{}, &Error{
			Status:  http.StatusBadRequest,
			Message: "missing prompt: describe the image you want to generate",
			Err:     ErrMissingPrompt,
		}
	}

	key, err := h.key.Resolve(ctx)
	if err != nil {
		log.Error("resolving credential", "err", err)
		return api.GenerateResponse{}, &Error{
			Status:  http.StatusInternalServerError,
			Message: "could not load the NANOBANANA_API_KEY credential: " + err.Error(),
			Err:     errors.Join(ErrMissingCredential, err),
		}
	}
	if key == "" {
		return api.GenerateResponse{}, &Error{
			Status:  http.StatusInternalServerError,
			Message: "configure the NANOBANANA_API_KEY environment variable before generating images",
			Err:     ErrMissingCredential,
		}
	}

	params := toImageParams(req)
	images, err := h.generator.Generate(ctx, key, params)
	if err != nil {
		var statusErr *image.StatusError
		if errors.As(err, &statusErr) {
			return api.GenerateResponse{}, &Error{Status: statusErr.Status, Message: statusErr.Error(), Err: err}
		}
		log.Error("generating image", "err", err)
		status, message := StatusOf(err)
		return api.GenerateResponse{}, &Error{Status: status, Message: message, Err: err}
	}

	if len(images) == 0 {
		return api.GenerateResponse{}, &Error{
			Status:  http.StatusBadGateway,
			Message: "the response contains no valid images; check the prompt or the configuration",
			Err:     ErrNoImages,
		}
	}

	rec := store.Record{
		ID:            uuid.NewString(),
		Prompt:        params.Prompt,
		Seed:          params.Seed,
		Steps:         params.Steps,
		GuidanceScale: params.GuidanceScale,
		Images:        images,
		Created:       h.now(),
	}
	if err := h.archiver.Archive(ctx, rec); err != nil {
		log.Warn("archiving images", "id", rec.ID, "err", err)
	}

	return api.GenerateResponse{Images: images, Message: SuccessMessage}, nil
}

// Generate lets a console drive the handler in process, without the HTTP hop
// through /api/generate.
func (h *Handler) Generate(ctx context.Context, req api.GenerateRequest) (api.GenerateResponse, error) {
	return h.Handle(ctx, req)
}
