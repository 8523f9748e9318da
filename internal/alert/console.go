package alert

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Console writes rendered alerts to a writer, stdout by default.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a console sink. out nil means stdout.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

func (c *Console) Name() string  { return "console" }
func (c *Console) Enabled() bool { return true }

func (c *Console) Send(_ context.Context, a *Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n--- %s ---\n%s\n",
		time.Now().Format("15:04:05"), Render(a))
	return err
}
