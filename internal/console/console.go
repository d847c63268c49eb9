// Package console holds the state of one prompt conversation: the message
// log, the draft prompt, the tunable parameters and the in-flight request.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmorgan81/bananaconsole/internal/api"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

const (
	MinGuidanceScale  = 1.0
	MaxGuidanceScale  = 15.0
	GuidanceScaleStep = 0.5
	MinSteps          = 10
	MaxSteps          = 50

	IntroText      = "Hi, I am the Nano Banana Pro creative agent. Describe what you want to see and I will generate unique images for you."
	DefaultCaption = "Here is your creation. Adjust the parameters to explore variations."
	FailurePrefix  = "There was a problem generating the image: "
	unknownFailure = "unknown error"
	noImageFailure = "no image was received; check the configuration or try again"
)

// Message is one entry of the conversation log. It is never changed after
// it has been appended.
type Message struct {
	ID        string
	Role      Role
	Content   string
	ImageURL  string
	CreatedAt time.Time
	Meta      map[string]any
}

type Params struct {
	NegativePrompt string
	GuidanceScale  float64
	Steps          int
	Seed           string
}

func DefaultParams() Params {
	return Params{GuidanceScale: api.DefaultGuidanceScale, Steps: api.DefaultSteps}
}

// Clamp snaps the guidance scale to [1,15] in 0.5 increments and the steps
// to [10,50].
func (p Params) Clamp() Params {
	g := p.GuidanceScale
	if math.IsNaN(g) {
		g = api.DefaultGuidanceScale
	}
	g = math.Round(g/GuidanceScaleStep) * GuidanceScaleStep
	p.GuidanceScale = lo.Clamp(g, MinGuidanceScale, MaxGuidanceScale)
	p.Steps = lo.Clamp(p.Steps, MinSteps, MaxSteps)
	return p
}

type Generator interface {
	Generate(context.Context, api.GenerateRequest) (api.GenerateResponse, error)
}

// State is a point in time copy of a Console, suitable for rendering.
type State struct {
	Messages  []Message
	Draft     string
	Params    Params
	Busy      bool
	LastError string
}

type Console struct {
	generator Generator
	now       func() time.Time

	mu       sync.Mutex
	messages []Message
	draft    string
	params   Params
	busy     bool
	lastErr  string
}

func New(generator Generator) *Console {
	c := &Console{
		generator: generator,
		now:       time.Now,
		params:    DefaultParams(),
	}
	c.messages = []Message{{ID: "intro", Role: RoleAgent, Content: IntroText, CreatedAt: c.now()}}
	return c
}

func (c *Console) SetDraft(draft string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
}

func (c *Console) SetParams(p Params) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = p.Clamp()
}

// Messages returns the log ordered by creation time. Entries created at the
// same instant keep their insertion order.
func (c *Console) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedLocked()
}

func (c *Console) sortedLocked() []Message {
	msgs := slices.Clone(c.messages)
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return msgs
}

// Busy reports whether a submission is in flight.
func (c *Console) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Messages:  c.sortedLocked(),
		Draft:     c.draft,
		Params:    c.params,
		Busy:      c.busy,
		LastError: c.lastErr,
	}
}

// Submit sends the draft prompt for generation and blocks until the call
// settles. It returns false without side effects when the draft is blank or
// another submission is still in flight.
func (c *Console) Submit(ctx context.Context) (submitted bool) {
	c.mu.Lock()
	prompt := strings.TrimSpace(c.draft)
	if prompt == "" || c.busy {
		c.mu.Unlock()
		return false
	}
	params := c.params
	c.append(Message{ID: uuid.NewString(), Role: RoleUser, Content: prompt})
	c.draft = ""
	c.busy = true
	c.lastErr = ""
	c.mu.Unlock()

	logger := log.FromContextOrDiscard(ctx).WithGroup("console")
	logger.Info("submitting prompt", "prompt", prompt)

	var (
		resp api.GenerateResponse
		err  error
	)
	submitted = true
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
		c.settle(logger, params, resp, err)
	}()

	resp, err = c.generator.Generate(ctx, api.GenerateRequest{
		Prompt:         prompt,
		NegativePrompt: strings.TrimSpace(params.NegativePrompt),
		GuidanceScale:  lo.ToPtr(params.GuidanceScale),
		Steps:          lo.ToPtr(params.Steps),
		Seed:           strings.TrimSpace(params.Seed),
	})
	return submitted
}

func (c *Console) settle(logger *slog.Logger, params Params, resp api.GenerateResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err == nil && len(resp.Images) == 0 {
		err = errors.New(noImageFailure)
	}
	if err != nil {
		description := lo.Ternary(err.Error() != "", err.Error(), unknownFailure)
		logger.Warn("generation failed", "err", description)
		c.lastErr = description
		c.append(Message{ID: uuid.NewString(), Role: RoleAgent, Content: FailurePrefix + description})
		return
	}

	meta := map[string]any{
		"guidanceScale": params.GuidanceScale,
		"steps":         params.Steps,
	}
	if seed := strings.TrimSpace(params.Seed); seed != "" {
		meta["seed"] = seed
	}
	c.append(Message{
		ID:       uuid.NewString(),
		Role:     RoleAgent,
		Content:  lo.Ternary(resp.Message != "", resp.Message, DefaultCaption),
		ImageURL: resp.Images[0],
		Meta:     meta,
	})
}

// append stamps msg with the current time and adds it to the log. Callers
// hold c.mu.
func (c *Console) append(msg Message) {
	msg.CreatedAt = c.now()
	c.messages = append(c.messages, msg)
}
