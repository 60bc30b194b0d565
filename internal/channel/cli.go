package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// CLI is the terminal channel: one local sender, lines in on stdin, replies
// on stdout. When stdout is a TTY the channel accepts streamed fragments
// and prints them as they arrive.
type CLI struct {
	in        io.Reader
	out       io.Writer
	streaming bool
}

// NewCLI builds the terminal channel over the given reader and writer.
func NewCLI(in io.Reader, out io.Writer) *CLI {
	c := &CLI{in: in, out: out}
	if f, ok := out.(*os.File); ok {
		c.streaming = term.IsTerminal(int(f.Fd()))
	}
	return c
}

func (c *CLI) Name() string { return "cli" }

func (c *CLI) Streaming() bool { return c.streaming }

// Send prints text. Streamed fragments print raw; buffered replies get a
// trailing newline.
func (c *CLI) Send(ctx context.Context, senderID, text string) error {
	if c.streaming {
		_, err := fmt.Fprint(c.out, text)
		return err
	}
	_, err := fmt.Fprintln(c.out, text)
	return err
}

// Typing is a no-op; the terminal has no indicator.
func (c *CLI) Typing(ctx context.Context, senderID string, on bool) error {
	return nil
}

// Run reads lines until EOF, /quit, or cancellation. Each line is one turn,
// handled to completion before the next prompt.
func (c *CLI) Run(ctx context.Context, handle func(context.Context, interfaces.Inbound)) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.streaming {
			fmt.Fprint(c.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		handle(ctx, interfaces.Inbound{Channel: "cli", SenderID: "local", Content: line})
		if c.streaming {
			fmt.Fprintln(c.out)
		}
	}
}
