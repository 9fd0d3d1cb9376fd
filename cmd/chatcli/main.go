package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/veloramarket/velora-chat/internal/auth"
	"github.com/veloramarket/velora-chat/internal/config"
	logpkg "github.com/veloramarket/velora-chat/internal/log"
	"github.com/veloramarket/velora-chat/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		userName   string
		token      string
		secret     string
		contactID  string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:          "chatcli",
		Short:        "Interactive client for the Velora chat service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logpkg.New(logLevel)
			cfg, _, err := config.Load(logger, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if token == "" {
				// Self-sign a token for local development setups that
				// share the service's secret.
				if secret == "" {
					secret = cfg.Server.JWTSecret
				}
				jwtCfg := &auth.JWTConfig{
					Secret:   []byte(secret),
					Issuer:   cfg.Server.JWTIssuer,
					Audience: cfg.Server.JWTAudience,
				}
				token, err = auth.SignToken(jwtCfg, userID, userName)
				if err != nil {
					return fmt.Errorf("sign token: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runClient(ctx, cfg.Session, logger, userID, token, contactID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&userID, "user", "cli-user", "user id to connect as")
	cmd.Flags().StringVar(&userName, "name", "CLI User", "display name")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (self-signed when empty)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret for self-signed tokens")
	cmd.Flags().StringVar(&contactID, "contact", "", "contact to open a conversation with")
	cmd.Flags().StringVar(&logLevel, "log-level", "error", "log level (trace..panic)")
	return cmd
}

func runClient(ctx context.Context, cfg config.SessionConfig, logger *zerolog.Logger, userID, token, contactID string) error {
	sess := session.New(cfg, logger)
	api := session.NewAPI(cfg.APIBaseURL, token, logger)
	chat := session.NewChat(sess, api, cfg, logger)

	view := &view{chat: chat, selfID: userID}
	chat.SetOnUpdate(view.render)

	if err := chat.Open(ctx, userID, token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer chat.Close()

	fmt.Printf("Connected to %s as %s\n", cfg.ServerURL, userID)
	fmt.Println("Commands: /contacts, /select <id>, /rooms, /online, /quit. Anything else sends.")

	if contactID != "" {
		if err := chat.SelectRoom(ctx, contactID, contactID); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
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
			if done := view.handle(ctx, line); done {
				return nil
			}
		}
	}
}

// view renders chat updates to stdout and interprets input lines.
type view struct {
	chat   *session.Chat
	selfID string

	mu      sync.Mutex
	printed int
	typing  bool
}

// render prints messages that arrived since the last update and typing
// transitions. It runs on session goroutines.
func (v *view) render() {
	v.mu.Lock()
	defer v.mu.Unlock()

	msgs := v.chat.Messages()
	if len(msgs) < v.printed {
		// The room changed, the list starts over.
		v.printed = 0
	}
	for _, m := range msgs[v.printed:] {
		who := m.SenderID
		if m.IsOwn {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s (%s)\n", m.RoomID, who, m.Content, m.Status)
	}
	v.printed = len(msgs)

	if t := v.chat.PeerTyping(); t != v.typing {
		v.typing = t
		if t {
			fmt.Println("* contact is typing...")
		}
	}
}

// handle interprets one input line, returning true to quit.
func (v *view) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/contacts":
		v.printContacts(ctx)
	case line == "/rooms":
		if err := v.chat.RequestConversations(ctx); err != nil {
			fmt.Printf("rooms: %v\n", err)
		} else {
			for _, r := range v.chat.Conversations() {
				fmt.Printf("  %s (%s)\n", r.RoomID, r.DirectKey)
			}
		}
	case line == "/online":
		if err := v.chat.RequestOnlineUsers(ctx); err != nil {
			fmt.Printf("online: %v\n", err)
		}
		for _, u := range v.chat.Online() {
			fmt.Printf("  %s (%s)\n", u.Name, u.ID)
		}
	case strings.HasPrefix(line, "/select "):
		contact := strings.TrimSpace(strings.TrimPrefix(line, "/select "))
		if err := v.chat.SelectRoom(ctx, contact, contact); err != nil {
			fmt.Printf("select: %v\n", err)
		}
	case strings.HasPrefix(line, "/"):
		fmt.Printf("unknown command %s\n", line)
	default:
		if err := v.chat.SendMessage(ctx, line, "text"); err != nil {
			fmt.Printf("send: %v\n", err)
		}
	}
	return false
}

func (v *view) printContacts(ctx context.Context) {
	contacts, err := v.chat.ListContacts(ctx)
	if err != nil {
		fmt.Printf("contacts: %v\n", err)
		return
	}
	for _, c := range contacts {
		marker := " "
		if c.IsOnline || v.chat.IsOnline(c.ID) {
			marker = "*"
		}
		fmt.Printf("  %s %s (%s) %s\n", marker, c.Name, c.ID, strings.Join(c.Roles, ","))
	}
}
