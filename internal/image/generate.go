package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Params is the payload sent to the upstream generation API.
type Params struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	GuidanceScale  float64 `json:"guidance_scale"`
	Steps          int     `json:"num_inference_steps"`
	Seed           string  `json:"seed,omitempty"`
}

// Generator returns the displayable image references produced for params.
// The slice may be empty when the upstream answered without usable images.
type Generator interface {
	Generate(ctx context.Context, key string, params Params) ([]string, error)
}

var ErrUpstream = errors.New("upstream error")

// StatusError reports a non-success answer from the upstream API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Nano Banana Pro returned an error (%d): %s",
		e.Status, lo.Ternary(e.Body != "", e.Body, "no details"))
}

func (e *StatusError) Unwrap() error {
	return ErrUpstream
}
