// Package console runs the interactive chat loop of the client binary.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
)

const (
	prompt      = "You: "
	exitCommand = "exit"
)

// Asker sends one user message through the relay.
type Asker interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Console reads lines from in, relays them, and prints replies to out.
type Console struct {
	asker Asker
	in    io.Reader
	out   io.Writer
}

func New(asker Asker, in io.Reader, out io.Writer) *Console {
	return &Console{asker: asker, in: in, out: out}
}

// Run blocks until the user types exit, input ends, or ctx is cancelled.
// Only cancellation is reported as an error.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go c.scan(ctx, lines)

	for {
		fmt.Fprint(c.out, prompt)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(c.out)
			return nil
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.EqualFold(trimmed, exitCommand) {
			return nil
		}

		reply, err := c.asker.Ask(ctx, line)
		if err != nil {
			log.Printf("[console] no reply: %v", err)
			fmt.Fprintln(c.out, "Assistant: (no response)")
			continue
		}
		fmt.Fprintf(c.out, "Assistant: %s\n", reply)
	}
}

// scan feeds lines until EOF. A read blocked on a terminal cannot be
// interrupted, so the goroutine may outlive Run on cancellation.
func (c *Console) scan(ctx context.Context, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[console] read input: %v", err)
	}
}
