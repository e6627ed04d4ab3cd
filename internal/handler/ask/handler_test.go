package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/relay/internal/auth"
	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
	"github.com/zhouzirui/z-tavern/relay/internal/service/inference"
	relayservice "github.com/zhouzirui/z-tavern/relay/internal/service/relay"
)

var secret = []byte("s3cr3t")

type fakeBackend struct {
	calls int
	reply json.RawMessage
	err   error
}

func (f *fakeBackend) Generate(_ context.Context, _ inference.GenerateRequest) (json.RawMessage, error) {
	f.calls++
	return f.reply, f.err
}

func setupRouter(backend *fakeBackend) *chi.Mux {
	server := relayservice.NewServer(auth.NewVerifier(secret, auth.DefaultWindow), backend)
	r := chi.NewRouter()
	New(server).RegisterRoutes(r)
	return r
}

func signedRequest(t *testing.T, payload relay.RequestPayload, ts int64, key []byte) *http.Request {
	t.Helper()
	body, err := auth.Canonicalize(payload)
	if err != nil {
		t.Fatalf("Canonicalize err: %v", err)
	}
	sig, err := auth.Sign(payload, key, ts)
	if err != nil {
		t.Fatalf("Sign err: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(relay.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(relay.HeaderSignature, sig)
	return req
}

var helloPayload = relay.RequestPayload{Model: "llama3:8b", Prompt: "Be brief.\nUser: hello", SystemPrompt: "Be brief."}

func TestAskReturnsModelJSONVerbatim(t *testing.T) {
	backend := &fakeBackend{reply: json.RawMessage(`{"model":"llama3:8b","response":"hi","done":true,"eval_count":7}`)}
	r := setupRouter(backend)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, signedRequest(t, helloPayload, time.Now().Unix(), secret))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != string(backend.reply) {
		t.Fatalf("expected verbatim body, got %s", resp.Body.String())
	}
}

func TestAskStatusCodes(t *testing.T) {
	now := time.Now().Unix()
	missingHeaders := func(t *testing.T) *http.Request {
		req := signedRequest(t, helloPayload, now, secret)
		req.Header.Del(relay.HeaderSignature)
		return req
	}

	cases := []struct {
		name    string
		request func(t *testing.T) *http.Request
		want    int
	}{
		{"missing headers", missingHeaders, http.StatusUnauthorized},
		{"missing headers, empty body", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/ask", http.NoBody)
		}, http.StatusUnauthorized},
		{"missing headers, bad body", func(t *testing.T) *http.Request {
			return httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"prompt":`))
		}, http.StatusUnauthorized},
		{"timestamp only, bad body", func(t *testing.T) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString("not json"))
			req.Header.Set(relay.HeaderTimestamp, strconv.FormatInt(now, 10))
			return req
		}, http.StatusUnauthorized},
		{"wrong secret", func(t *testing.T) *http.Request { return signedRequest(t, helloPayload, now, []byte("other")) }, http.StatusForbidden},
		{"expired", func(t *testing.T) *http.Request { return signedRequest(t, helloPayload, now-600, secret) }, http.StatusForbidden},
		{"bad body", func(t *testing.T) *http.Request {
			req := signedRequest(t, helloPayload, now, secret)
			req.Body = http.NoBody
			return req
		}, http.StatusBadRequest},
		{"empty prompt", func(t *testing.T) *http.Request {
			return signedRequest(t, relay.RequestPayload{Model: "llama3:8b"}, now, secret)
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{reply: json.RawMessage(`{"response":"hi"}`)}
			resp := httptest.NewRecorder()
			setupRouter(backend).ServeHTTP(resp, tc.request(t))

			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, resp.Code, resp.Body.String())
			}
			if backend.calls != 0 {
				t.Fatalf("expected backend not to be called, got %d calls", backend.calls)
			}
		})
	}
}

func TestAskUpstreamFailureIsBadGateway(t *testing.T) {
	backend := &fakeBackend{err: &inference.UpstreamError{Err: errors.New("dial tcp: connection refused")}}
	resp := httptest.NewRecorder()
	setupRouter(backend).ServeHTTP(resp, signedRequest(t, helloPayload, time.Now().Unix(), secret))

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}
