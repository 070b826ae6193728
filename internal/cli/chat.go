package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/api"
	"github.com/weiawesome/fin-dashboard/internal/chat"
	"github.com/weiawesome/fin-dashboard/internal/domain"
	pkglog "github.com/weiawesome/fin-dashboard/pkg/log"
)

const chatHelp = `commands: /history  /refresh  /reconnect  /quit`

func newChatCommand(a *app) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the team chat (one line per message)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := a.client.Claims()
			if err != nil {
				return fmt.Errorf("log in first: %w", err)
			}

			cfg := a.cfg.Chat
			if url != "" {
				cfg.URL = url
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, cfg, a.cfg.WebSocket, a.client, chat.Identity{Username: claims.Username, Token: a.client.Token()}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Websocket URL (default from config)")
	return cmd
}

// printer serializes output from session handlers and the input loop.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) warn(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	red.Fprintf(p.w, "! "+format+"\n", args...)
}

func runChat(ctx context.Context, cfg chat.Config, wsCfg chat.WebsocketConfig, client *api.Client, id chat.Identity, in io.Reader, out io.Writer) error {
	p := &printer{w: out}
	logger := pkglog.L().With().Str("component", "chat").Logger()

	session := chat.NewSession(cfg, chat.NewWebsocketDialer(wsCfg), client,
		chat.WithHealthProber(client),
		chat.WithLogger(logger),
	)
	unsubscribe := session.Subscribe(func(e chat.Event) {
		switch e.Kind {
		case chat.EventMessage:
			if e.Message.Type != domain.MessageReceipt {
				p.println("%s", formatMessage(e.Message))
			}
		case chat.EventDelayed:
			p.warn("still sending: %s", e.Message.Content)
		case chat.EventHistory:
			p.println("* history synced (%d messages)", len(e.Messages))
		case chat.EventState:
			p.println("%s", faint.Sprintf("* %s", e.State))
		case chat.EventError:
			p.warn("%v", e.Err)
		}
	})
	defer unsubscribe()
	defer session.Disconnect()

	if err := session.Connect(ctx, id); err != nil {
		p.warn("connect failed, retrying in background: %v", err)
	}
	p.println("%s", chatHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			switch line {
			case "/quit", "/exit":
				return nil
			case "/history":
				for _, m := range session.Messages() {
					p.println("%s", formatMessage(m))
				}
			case "/refresh":
				if err := session.RefreshHistory(ctx); err != nil {
					p.warn("%v", err)
				}
			case "/reconnect":
				if err := session.Connect(ctx, id); err != nil {
					p.warn("%v", err)
				}
			default:
				if strings.HasPrefix(line, "/") {
					p.println("%s", chatHelp)
					continue
				}
				if _, err := session.Send(ctx, domain.NewChat(id.Username, line)); err != nil {
					p.warn("not sent: %v", err)
				}
			}
		}
	}
}
