package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/javalab/jl-assistant/internal"
	"github.com/javalab/jl-assistant/internal/chat"
)

// Line commands understood by RunLine
const (
	cmdNew  = "/new"
	cmdQuit = "/quit"
)

// lineWriter prints only the part of the reply not yet written, so tokens
// appear as they stream
type lineWriter struct {
	mu      sync.Mutex
	out     io.Writer
	ctrl    *chat.Controller
	turn    int // index the current reply will occupy
	printed int
}

func (w *lineWriter) onChange() {
	snap := w.ctrl.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.turn <= 0 || len(snap.Messages) <= w.turn {
		return
	}
	msg := snap.Messages[w.turn]
	if msg.Role != internal.RoleAssistant || len(msg.Content) <= w.printed {
		return
	}
	if w.printed == 0 {
		fmt.Fprintf(w.out, "%s: ", assistantName)
	}
	fmt.Fprint(w.out, msg.Content[w.printed:])
	w.printed = len(msg.Content)
}

// RunLine drives ctrl from line-oriented input, for pipes and dumb
// terminals. Each line is sent as one message; "/new" starts a new chat
// and "/quit" or EOF ends the session.
func RunLine(ctx context.Context, ctrl *chat.Controller, in io.Reader, out io.Writer) error {
	w := &lineWriter{out: out, ctrl: ctrl}
	ctrl.SetOnChange(w.onChange)
	ctrl.Open()

	printGreeting(out, ctrl)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case cmdQuit:
			return nil
		case cmdNew:
			ctrl.NewChat()
			printGreeting(out, ctrl)
			continue
		}

		// the user message is appended first, the reply follows it
		w.mu.Lock()
		w.turn = len(ctrl.Snapshot().Messages) + 1
		w.printed = 0
		w.mu.Unlock()

		ctrl.SetInput(line)
		err := ctrl.Submit(ctx)
		w.mu.Lock()
		replied := w.printed > 0
		w.mu.Unlock()
		if replied {
			fmt.Fprintln(out)
		}

		if err != nil {
			if errors.Is(err, chat.ErrEmptyInput) {
				continue
			}
			if n := ctrl.Snapshot().Notice; n != nil {
				fmt.Fprintf(out, "%s: %s\n", n.Title, n.Description)
				ctrl.DismissNotice()
			} else {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func printGreeting(out io.Writer, ctrl *chat.Controller) {
	snap := ctrl.Snapshot()
	if len(snap.Messages) > 0 {
		fmt.Fprintf(out, "%s: %s\n", assistantName, snap.Messages[0].Content)
	}
}
