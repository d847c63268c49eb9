package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleLambda serves a Lambda function URL invocation through the same
// routes as the HTTP listener.
func (s *Server) HandleLambda(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return events.LambdaFunctionURLResponse{StatusCode: http.StatusBadRequest, Body: "invalid base64 body"}, nil
		}
		body = string(decoded)
	}

	target := event.RawPath
	if target == "" {
		target = "/"
	}
	if event.RawQueryString != "" {
		target += "?" + event.RawQueryString
	}

	req, err := http.NewRequestWithContext(ctx, event.RequestContext.HTTP.Method, target, strings.NewReader(body))
	if err != nil {
		return events.LambdaFunctionURLResponse{}, err
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	if len(event.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(event.Cookies, "; "))
	}
	req.RemoteAddr = event.RequestContext.HTTP.SourceIP

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	resp := events.LambdaFunctionURLResponse{
		StatusCode: rec.Code,
		Headers:    map[string]string{},
		Body:       rec.Body.String(),
		Cookies:    rec.Result().Header.Values("Set-Cookie"),
	}
	for k, v := range rec.Header() {
		if k == "Set-Cookie" {
			continue
		}
		resp.Headers[k] = strings.Join(v, ",")
	}
	return resp, nil
}
