package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/samber/do"
)

//go:embed assets/console.html
var consoleTmpl string

type Params struct {
	State       console.State
	MinGuidance float64
	MaxGuidance float64
	GuidanceInc float64
	MinSteps    int
	MaxSteps    int
}

func NewParams(state console.State) Params {
	return Params{
		State:       state,
		MinGuidance: console.MinGuidanceScale,
		MaxGuidance: console.MaxGuidanceScale,
		GuidanceInc: console.GuidanceScaleStep,
		MinSteps:    console.MinSteps,
		MaxSteps:    console.MaxSteps,
	}
}

var funcs = template.FuncMap{
	"clock": func(t time.Time) string { return t.Format("15:04") },
	"label": func(r console.Role) string {
		if r == console.RoleAgent {
			return "Agent"
		}
		return "User"
	},
	// PNG data URIs are built by the proxy itself; html/template would
	// otherwise rewrite them to #ZgotmplZ. Everything else is left to the
	// normal URL sanitizer.
	"imgsrc": func(s string) any {
		if strings.HasPrefix(s, image.DataURIPrefix) {
			return template.URL(s)
		}
		return s
	},
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("console").Funcs(funcs).Parse(consoleTmpl))
	})

	log := log.FromContextOrDiscard(ctx).WithGroup("templator")
	log.Debug("rendering console page", "messages", len(params.State.Messages))

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
