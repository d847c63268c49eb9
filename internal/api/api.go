// Package api holds the JSON shapes exchanged between the console and the
// generation proxy over POST /api/generate.
package api

const (
	DefaultGuidanceScale = 7.0
	DefaultSteps         = 30
)

type GenerateRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negativePrompt,omitempty"`
	GuidanceScale  *float64 `json:"guidanceScale,omitempty"`
	Steps          *int     `json:"steps,omitempty"`
	Seed           string   `json:"seed,omitempty"`
}

type GenerateResponse struct {
	Images  []string `json:"images"`
	Message string   `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
