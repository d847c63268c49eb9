package handler

import (
	"errors"
	"net/http"
)

var (
	ErrMissingPrompt     = errors.New("missing prompt")
	ErrMissingCredential = errors.New("missing credential")
	ErrNoImages          = errors.New("no valid images")
)

const fallbackMessage = "unexpected error generating the image"

// Error is a failure that already knows the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusOf maps any error to the status and message reported to clients.
// Uncategorized errors become 500 with their own text.
func StatusOf(err error) (int, string) {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Status, herr.Message
	}
	if err == nil || err.Error() == "" {
		return http.StatusInternalServerError, fallbackMessage
	}
	return http.StatusInternalServerError, err.Error()
}
