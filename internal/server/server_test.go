package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dmorgan81/bananaconsole/internal/api"
	"github.com/dmorgan81/bananaconsole/internal/client"
	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/dmorgan81/bananaconsole/internal/feed"
	"github.com/dmorgan81/bananaconsole/internal/handler"
	"github.com/dmorgan81/bananaconsole/internal/image"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/page"
	"github.com/dmorgan81/bananaconsole/internal/param"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stack wires a real proxy in front of a fake upstream, plus a console
// client that talks to the proxy over HTTP.
type stack struct {
	upstream *httptest.Server
	proxy    *httptest.Server
	server   *Server
	client   *client.Client
}

func newStack(t *testing.T, apiKey string, upstream http.HandlerFunc) *stack {
	t.Helper()
	st := &stack{upstream: httptest.NewServer(upstream)}
	t.Cleanup(st.upstream.Close)

	gen := &image.NanoBananaGenerator{Client: st.upstream.Client(), BaseURL: st.upstream.URL}
	h := handler.New(gen, &param.Resolver{Value: apiKey}, nil)

	st.client = &client.Client{HTTP: http.DefaultClient}
	st.server = New(h, NewSessions(st.client), &page.Templator{}, &feed.Generator{}, log.New(io.Discard, slog.LevelInfo))
	st.proxy = httptest.NewServer(st.server)
	t.Cleanup(st.proxy.Close)
	st.client.BaseURL = st.proxy.URL
	return st
}

func upstreamJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestScenarioBananaAstronaut(t *testing.T) {
	var gotAuth string
	st := newStack(t, "key-1", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"images":["https://cdn/x.png"]}`)
	})

	status, body := postJSON(t, st.proxy.URL+"/api/generate", `{"prompt":"a banana astronaut"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{
		"images":  []any{"https://cdn/x.png"},
		"message": "image generated successfully",
	}, body)
	assert.Equal(t, "Bearer key-1", gotAuth)

	c := console.New(st.client)
	c.SetDraft("a banana astronaut")
	require.True(t, c.Submit(context.Background()))
	msgs := c.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, console.RoleAgent, last.Role)
	assert.Equal(t, "https://cdn/x.png", last.ImageURL)
	assert.Equal(t, "image generated successfully", last.Content)
}

func TestScenarioMissingCredential(t *testing.T) {
	called := false
	st := newStack(t, "", func(http.ResponseWriter, *http.Request) { called = true })

	status, body := postJSON(t, st.proxy.URL+"/api/generate", `{"prompt":"a banana astronaut"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body["error"], "NANOBANANA_API_KEY")
	assert.False(t, called)

	c := console.New(st.client)
	c.SetDraft("a banana astronaut")
	require.True(t, c.Submit(context.Background()))
	state := c.State()
	assert.Contains(t, state.LastError, "NANOBANANA_API_KEY")
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, console.RoleAgent, last.Role)
	assert.Equal(t, console.FailurePrefix+state.LastError, last.Content)
}

func TestScenarioBase64Output(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{"output":[{"b64_json":"Zm9v"}]}`))

	status, body := postJSON(t, st.proxy.URL+"/api/generate", `{"prompt":"p"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"data:image/png;base64,Zm9v"}, body["images"])
}

func TestGenerateErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		upstream http.HandlerFunc
		body     string
		status   int
		contains string
	}{
		{"missing prompt", upstreamJSON(`{}`), `{"prompt":"   "}`, http.StatusBadRequest, "missing prompt"},
		{"no images", upstreamJSON(`{}`), `{"prompt":"p"}`, http.StatusBadGateway, "no valid images"},
		{
			name: "upstream status mirrored",
			upstream: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, "quota exceeded")
			},
			body:     `{"prompt":"p"}`,
			status:   http.StatusTooManyRequests,
			contains: "(429): quota exceeded",
		},
		{"upstream not json", upstreamJSON(`<html>`), `{"prompt":"p"}`, http.StatusInternalServerError, "decoding upstream response"},
		{"malformed request body", upstreamJSON(`{}`), `{`, http.StatusInternalServerError, "invalid request body: unexpected EOF"},
		{"truncated request body", upstreamJSON(`{}`), `{"prompt":`, http.StatusInternalServerError, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStack(t, "k", tt.upstream)
			status, body := postJSON(t, st.proxy.URL+"/api/generate", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, body["error"], tt.contains)
		})
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{}`))
	resp, err := http.Get(st.proxy.URL + "/api/generate")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func TestConsolePageFlow(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{"images":["https://cdn/astronaut.png"]}`))
	hc := noRedirectClient()

	resp, err := hc.Get(st.proxy.URL + "/")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), console.IntroText)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)

	form := url.Values{
		"prompt":         {"a banana astronaut"},
		"negativePrompt": {"blurry"},
		"guidanceScale":  {"9.5"},
		"steps":          {"not a number"},
		"seed":           {"7"},
	}
	req, _ := http.NewRequest(http.MethodPost, st.proxy.URL+"/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookies[0])
	resp, err = hc.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	req, _ = http.NewRequest(http.MethodGet, st.proxy.URL+"/", nil)
	req.AddCookie(cookies[0])
	resp, err = hc.Do(req)
	require.NoError(t, err)
	page, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(page), "a banana astronaut")
	assert.Contains(t, string(page), `src="https://cdn/astronaut.png"`)
	assert.Empty(t, resp.Cookies(), "existing session is reused")
	assert.Equal(t, 1, st.server.sessions.Len())

	var c *console.Console
	for _, sess := range st.server.sessions.sessions {
		c = sess.console
	}
	assert.Equal(t, console.Params{NegativePrompt: "blurry", GuidanceScale: 9.5, Steps: api.DefaultSteps, Seed: "7"}, c.State().Params)
}

func TestSessionsAreIndependent(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{"images":["https://cdn/x.png"]}`))
	hc := noRedirectClient()

	resp, err := hc.PostForm(st.proxy.URL+"/", url.Values{"prompt": {"first tab"}})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = hc.Get(st.proxy.URL + "/")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.NotContains(t, string(page), "first tab")
	assert.Equal(t, 2, st.server.sessions.Len())
}

func TestMiscRoutes(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{}`))

	resp, err := http.Get(st.proxy.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(st.proxy.URL + "/feed.xml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(st.proxy.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, st.proxy.URL+"/", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleLambda(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{"images":["https://cdn/x.png"]}`))

	event := events.LambdaFunctionURLRequest{
		RawPath:         "/api/generate",
		Headers:         map[string]string{"content-type": "application/json"},
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"prompt":"p"}`)),
		IsBase64Encoded: true,
	}
	event.RequestContext.HTTP.Method = http.MethodPost

	resp, err := st.server.HandleLambda(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	var out api.GenerateResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	assert.Equal(t, []string{"https://cdn/x.png"}, out.Images)
}

func TestHandleLambdaSessions(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{}`))

	get := events.LambdaFunctionURLRequest{RawPath: "/"}
	get.RequestContext.HTTP.Method = http.MethodGet

	first, err := st.server.HandleLambda(context.Background(), get)
	require.NoError(t, err)
	require.Len(t, first.Cookies, 1)
	assert.Contains(t, first.Body, console.IntroText)
	assert.NotContains(t, first.Headers, "Set-Cookie")

	get.Cookies = []string{strings.SplitN(first.Cookies[0], ";", 2)[0]}
	second, err := st.server.HandleLambda(context.Background(), get)
	require.NoError(t, err)
	assert.Empty(t, second.Cookies)
	assert.Equal(t, 1, st.server.sessions.Len())
}

func TestHandleLambdaBadBase64(t *testing.T) {
	st := newStack(t, "k", upstreamJSON(`{}`))
	event := events.LambdaFunctionURLRequest{RawPath: "/api/generate", Body: "***", IsBase64Encoded: true}
	event.RequestContext.HTTP.Method = http.MethodPost

	resp, err := st.server.HandleLambda(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
