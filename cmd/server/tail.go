package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/vedran77/ontomatch/internal/chatclient"
	"github.com/vedran77/ontomatch/internal/config"
	"github.com/vedran77/ontomatch/internal/service"
)

type tailOptions struct {
	UserID      string
	SessionID   string
	DisplayName string
	Focus       bool
}

// newTailCommand follows a chat session as one of its participants, printing
// messages in conversation order as they arrive.
func newTailCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &tailOptions{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a chat session from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(opts.UserID)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			sessionID, err := uuid.Parse(opts.SessionID)
			if err != nil {
				return fmt.Errorf("--session: %w", err)
			}
			return runTail(cmd.OutOrStdout(), rootOpts.ConfigPath, userID, sessionID, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "participant id to act as")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "chat session id")
	cmd.Flags().StringVar(&opts.DisplayName, "name", "cli", "display name announced in presence")
	cmd.Flags().BoolVar(&opts.Focus, "focus", false, "mark incoming messages read")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func runTail(out io.Writer, configPath string, userID, sessionID uuid.UUID, opts *tailOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer st.close()

	adapter, closeRealtime, err := openRealtime(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRealtime()

	chats := service.NewChatService(st.matches, st.chats)
	messages := service.NewMessageService(st.messages, chats, cfg.MessageMaxBytes)
	messages.SetNotifier(adapter)

	session, err := chats.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	view, err := chatclient.Open(ctx, messages, adapter, *session, chatclient.Options{
		UserID:       userID,
		DisplayName:  opts.DisplayName,
		PageSize:     cfg.HistoryPageSize,
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		return err
	}
	defer view.Close()

	if opts.Focus {
		if err := view.Focus(ctx); err != nil {
			slog.Warn("mark read failed", "session_id", sessionID, "error", err)
		}
	}

	printed := make(map[uuid.UUID]struct{})
	printNew := func() {
		for _, m := range view.Messages() {
			if _, ok := printed[m.ID]; ok {
				continue
			}
			printed[m.ID] = struct{}{}
			who := "them"
			if m.SenderID == userID {
				who = "me"
			}
			fmt.Fprintf(out, "%s %-4s [%s] %s\n", m.ServerTimestamp.Format(time.TimeOnly), who, m.Kind, m.Content)
		}
	}
	printNew()

	for {
		select {
		case <-ctx.Done():
			return nil
		case kind, ok := <-view.Updates():
			if !ok {
				return nil
			}
			switch kind {
			case chatclient.UpdateMessages:
				printNew()
			case chatclient.UpdatePresence:
				for _, p := range view.Presence() {
					if p.UserID != userID {
						fmt.Fprintf(out, "-- %s is here\n", p.DisplayName)
					}
				}
			case chatclient.UpdateConnectivity:
				if view.Connected() {
					fmt.Fprintln(out, "-- live")
				} else {
					fmt.Fprintln(out, "-- offline, polling")
				}
			}
		}
	}
}
