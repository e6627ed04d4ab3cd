package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type fakeAsker struct {
	calls []string
	fail  map[string]bool
}

func (f *fakeAsker) Ask(_ context.Context, message string) (string, error) {
	f.calls = append(f.calls, message)
	if f.fail[message] {
		return "", errors.New("relay down")
	}
	return "echo " + message, nil
}

func TestRunRelaysLinesUntilExit(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer
	in := strings.NewReader("hello\n\n  where am I?  \nEXIT\nignored\n")

	if err := New(asker, in, &out).Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}

	if len(asker.calls) != 2 || asker.calls[0] != "hello" || asker.calls[1] != "  where am I?  " {
		t.Fatalf("unexpected calls %q", asker.calls)
	}
	got := out.String()
	if !strings.Contains(got, "Assistant: echo hello\n") || !strings.Contains(got, "Assistant: echo   where am I?  \n") {
		t.Fatalf("unexpected output %q", got)
	}
	if !strings.HasPrefix(got, "You: ") {
		t.Fatalf("expected prompt first, got %q", got)
	}
}

func TestRunStopsOnEOF(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer

	if err := New(asker, strings.NewReader("one"), &out).Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}
	if len(asker.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(asker.calls))
	}
}

func TestRunReportsFailureAndContinues(t *testing.T) {
	asker := &fakeAsker{fail: map[string]bool{"bad": true}}
	var out bytes.Buffer

	if err := New(asker, strings.NewReader("bad\ngood\nexit\n"), &out).Run(context.Background()); err != nil {
		t.Fatalf("Run err: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Assistant: (no response)\n") || !strings.Contains(got, "Assistant: echo good\n") {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- New(&fakeAsker{}, pr, io.Discard).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
