package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reading-room/auth"
	"reading-room/client"
	"reading-room/domain"
	"strings"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join <room>",
	Short: "Join a reading room and chat from stdin",
	Long: `Join a reading room. Every line read from stdin is posted to the room.

Commands:
  /delete <message id>   delete a message (own messages, or any as moderator)
  /peers                 list the participants a WebRTC link is open with
  /quit                  leave the room

Examples:
  JWT_SECRET=dev peer join poetry --user alice
  PEER_TOKEN=eyJ... peer join poetry`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return err
		}
		return join(cmd.Context(), cfg, domain.RoomID(args[0]), os.Stdin, os.Stdout)
	},
}

func join(parent context.Context, cfg Config, room domain.RoomID, in io.Reader, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logs.GetLoggerFromString(cfg.LogLevel)

	token := cfg.Token
	if token == "" {
		minted, err := mintToken(cfg)
		if err != nil {
			return err
		}
		token = minted
	}
	self, err := auth.PeekIdentity(token)
	if err != nil {
		return err
	}

	conn, err := client.Dial(ctx, cfg.ServerURL, token, log)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	p := newPrinter(out, self.UserID, cfg.Colours)
	factory := client.NewPionFactory(cfg.STUNServers, log, p.direct)
	session := client.NewSession(conn, self, room, factory, log, p)

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()
	go readInput(ctx, in, session, p, stop)

	return <-done
}

// readInput posts each stdin line until EOF or /quit, then cancels the session.
func readInput(ctx context.Context, in io.Reader, session *client.Session, p *printer, stop context.CancelFunc) {
	defer stop()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/peers":
			p.peers(session.Peers())
		case strings.HasPrefix(line, "/delete "):
			if err := session.Delete(strings.TrimSpace(strings.TrimPrefix(line, "/delete "))); err != nil {
				p.failure(err)
			}
		default:
			if err := session.Post(line); err != nil {
				p.failure(err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		p.failure(fmt.Errorf("stdin: %w", err))
	}
}
