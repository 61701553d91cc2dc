// Package operator is the interactive console: prompts, the Q-to-stop
// listener, escalation choices and the campaign progress view.
package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"dmrotor/internal/halt"
)

// ReasonQuit is the stop reason recorded when the operator presses Q.
const ReasonQuit = "se presionó Q"

// Console reads operator input from one reader. A single goroutine owns the
// reader and hands each line either to the pending prompt or, when no prompt
// is waiting, to the quit listener. Lines typed ahead of a prompt are queued
// unless the quit listener is armed.
type Console struct {
	in  io.Reader
	out io.Writer
	// Clear redraws the progress view from the top of the screen.
	Clear bool

	start sync.Once

	mu     sync.Mutex
	waiter chan string
	queued []string
	quit   *halt.Signal
	eof    bool

	outMu sync.Mutex
}

func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

func (c *Console) dispatch() {
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		line := sc.Text()
		c.mu.Lock()
		w := c.waiter
		c.waiter = nil
		q := c.quit
		if w == nil && q == nil {
			c.queued = append(c.queued, line)
		}
		c.mu.Unlock()

		if w != nil {
			w <- line
			continue
		}
		if q != nil && strings.EqualFold(strings.TrimSpace(line), "q") {
			q.Request(ReasonQuit)
		}
	}
	c.mu.Lock()
	c.eof = true
	w := c.waiter
	c.waiter = nil
	c.mu.Unlock()
	if w != nil {
		close(w)
	}
}

// ReadLine waits for the next input line. It returns io.EOF once the input
// is exhausted.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.start.Do(func() { go c.dispatch() })

	w := make(chan string, 1)
	c.mu.Lock()
	if len(c.queued) > 0 {
		line := c.queued[0]
		c.queued = c.queued[1:]
		c.mu.Unlock()
		return line, nil
	}
	if c.eof {
		c.mu.Unlock()
		return "", io.EOF
	}
	c.waiter = w
	c.mu.Unlock()

	select {
	case line, ok := <-w:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.waiter == w {
			c.waiter = nil
		}
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

// ListenQuit makes a lone "q" line request stop while no prompt is active.
// The returned func disarms it.
func (c *Console) ListenQuit(stop *halt.Signal) func() {
	c.start.Do(func() { go c.dispatch() })
	c.mu.Lock()
	c.quit = stop
	c.mu.Unlock()
	c.Info("Presioná Q y Enter para detener la campaña.")
	return func() {
		c.mu.Lock()
		if c.quit == stop {
			c.quit = nil
		}
		c.mu.Unlock()
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Ask prints prompt and returns the trimmed answer.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	c.printf("%s", prompt)
	line, err := c.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// AskDefault returns def when the answer is empty.
func (c *Console) AskDefault(ctx context.Context, prompt, def string) (string, error) {
	v, err := c.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// AskInt re-prompts until it reads an integer >= min. Empty input returns def.
func (c *Console) AskInt(ctx context.Context, prompt string, min, def int) (int, error) {
	for {
		v, err := c.Ask(ctx, prompt)
		if err != nil {
			return 0, err
		}
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err == nil && n >= min {
			return n, nil
		}
		c.Warn(fmt.Sprintf("Ingresá un número mayor o igual a %d.", min))
	}
}

// Confirm reads a yes/no answer. Only "s"/"si"/"y"/"yes" count as yes.
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	v, err := c.Ask(ctx, prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(v) {
	case "s", "si", "sí", "y", "yes":
		return true, nil
	}
	return false, nil
}

// AskLines reads lines until an empty one.
func (c *Console) AskLines(ctx context.Context, prompt string) ([]string, error) {
	c.printf("%s\n", prompt)
	var out []string
	for {
		line, err := c.ReadLine(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			return out, nil
		}
		out = append(out, line)
	}
}

// Password asks for an account password. The input is echoed.
func (c *Console) Password(ctx context.Context, username string) (string, error) {
	c.printf("Password @%s: ", username)
	line, err := c.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
