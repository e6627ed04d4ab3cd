package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	relayservice "github.com/zhouzirui/z-tavern/relay/internal/service/relay"
)

type fakeAsker struct {
	calls []string
	reply string
	err   error
}

func (f *fakeAsker) Ask(_ context.Context, message string) (string, error) {
	f.calls = append(f.calls, message)
	return f.reply, f.err
}

func setupRouter(asker *fakeAsker) *chi.Mux {
	r := chi.NewRouter()
	New(asker).RegisterRoutes(r)
	return r
}

func postQuery(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestQueryReturnsReply(t *testing.T) {
	asker := &fakeAsker{reply: "The door is north."}
	resp := postQuery(setupRouter(asker), `{"message":"where do I go?"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]*string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["response"] == nil || *body["response"] != "The door is north." {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
	if len(asker.calls) != 1 || asker.calls[0] != "where do I go?" {
		t.Fatalf("unexpected calls %v", asker.calls)
	}
}

func TestQueryRelayFailureReturnsNull(t *testing.T) {
	asker := &fakeAsker{err: &relayservice.CallError{Kind: relayservice.FailureNetwork, Err: errors.New("connection refused")}}
	resp := postQuery(setupRouter(asker), `{"message":"hello"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := bytes.TrimSpace(resp.Body.Bytes()); string(got) != `{"response":null}` {
		t.Fatalf("expected null response, got %s", got)
	}
}

func TestQueryRejectsMissingMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":"   "}`, `not json`} {
		asker := &fakeAsker{}
		resp := postQuery(setupRouter(asker), body)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, resp.Code)
		}
		if len(asker.calls) != 0 {
			t.Fatalf("body %q: expected no relay call", body)
		}
	}
}

func TestQueryRelaysMessageVerbatim(t *testing.T) {
	asker := &fakeAsker{reply: "ok"}
	resp := postQuery(setupRouter(asker), `{"message":"  open the chest \n"}`)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(asker.calls) != 1 || asker.calls[0] != "  open the chest \n" {
		t.Fatalf("expected raw message relayed, got %q", asker.calls)
	}
}
