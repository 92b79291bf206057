package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"golang.org/x/term"
)

// ChatOptions configures the local chat simulator.
type ChatOptions struct {
	ContactID     string
	PhoneNumberID string
	ProjectID     string
	TenantID      string
	// Watch flushes cached flows when the flow documents change.
	Watch bool

	In  io.Reader
	Out io.Writer
}

// Simulator commands. Anything else is sent as the contact's text.
const (
	cmdTap     = "/tap"
	cmdSession = "/session"
	cmdQuit    = "/quit"
)

// RunChat plays the contact's side of a conversation on the terminal.
// Messages the engine sends are rendered instead of delivered.
func RunChat(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ChatOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	interactive := isTerminal(opts.In) && isTerminal(opts.Out)

	render := func(md string) (string, error) { return md + "\n", nil }
	if interactive {
		tui.PrintBanner(opts.Out, chatflow.Version)
		render = tui.NewRenderer()
	}

	sender := memory.NewSender()
	sender.OnSend = func(msg domain.OutboundMessage) {
		out, err := render(tui.MessageMarkdown(msg))
		if err != nil {
			logger.Warn("Render failed", "err", err)
			out = tui.MessageMarkdown(msg) + "\n"
		}
		fmt.Fprint(opts.Out, out)
	}

	stack, err := BuildStack(cfg, logger, WithSender(sender))
	if err != nil {
		return err
	}
	defer stack.Close()

	if opts.Watch {
		watching, err := stack.Flows.WatchInvalidation(ctx)
		if err != nil {
			logger.Warn("Flow watcher unavailable", "err", err)
		} else if watching {
			printSystemMessage(opts.Out, "Watching '%s' for changes.", cfg.FlowsDir)
		}
	}

	if interactive {
		printSystemMessage(opts.Out, "Chatting as '%s'. Type %s <button-id> to tap a button, %s to quit.", opts.ContactID, cmdTap, cmdQuit)
	}

	lines := readLines(ctx, opts.In)
	var lastSession string
	for {
		if interactive {
			fmt.Fprint(opts.Out, "> ")
		}
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		line = strings.TrimSpace(line)
		ev := domain.InboundEvent{
			ContactID:     opts.ContactID,
			PhoneNumberID: opts.PhoneNumberID,
			ProjectID:     opts.ProjectID,
			TenantID:      opts.TenantID,
			UserInput:     line,
		}

		switch {
		case line == "":
			continue
		case line == cmdQuit || line == "q" || line == "exit":
			return nil
		case line == cmdSession:
			printSession(ctx, opts.Out, stack, lastSession)
			continue
		case strings.HasPrefix(line, cmdTap+" "):
			ev.InteractiveResponseID = strings.TrimSpace(strings.TrimPrefix(line, cmdTap))
			ev.UserInput = ev.InteractiveResponseID
		}

		res, err := stack.Engine.HandleIncomingEvent(ctx, ev)
		if err != nil {
			printSystemMessage(opts.Out, "Error: %v", err)
			continue
		}
		if res.Message != "" {
			printSystemMessage(opts.Out, "%s", res.Message)
		}
		if res.Session == nil {
			continue
		}
		lastSession = res.Session.ID
		if res.Session.Status.Terminal() {
			printSystemMessage(opts.Out, "Session %s (%s) at '%s' node.", res.Session.Status, res.Session.EndReason, res.Session.CurrentNodeID)
		}
	}
}

func printSession(ctx context.Context, w io.Writer, stack *Stack, id string) {
	if id == "" {
		printSystemMessage(w, "No session yet.")
		return
	}
	s, err := stack.Engine.Session(ctx, id)
	if err != nil {
		printSystemMessage(w, "Error loading session '%s': %v", id, err)
		return
	}
	data, _ := json.MarshalIndent(s, "", "  ")
	fmt.Fprintln(w, string(data))
}

// readLines pumps r into a channel so the loop can also watch ctx.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
