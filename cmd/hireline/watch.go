package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	hireline "github.com/hireline-hq/hireline/sdk/golang"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var watchVerbose bool

func init() {
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "log transport diagnostics")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the real-time event stream (messages, presence, notifications)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Auth.Token == "" || cfg.Auth.UserID == "" {
			return fmt.Errorf("no session; run 'hireline login <token> <user-id>' first")
		}

		logger := zerolog.Nop()
		if watchVerbose {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		}

		client := hireline.NewClient(cfg.Auth.Token, clientOptions(cfg)...)
		sock := hireline.NewSocket(client.BaseURL(), &hireline.SocketConfig{
			Token:         cfg.Auth.Token,
			UserID:        cfg.Auth.UserID,
			AutoReconnect: true,
			Logger:        &logger,
		})
		defer sock.Close()

		sock.OnMessage(func(m hireline.Message) {
			fmt.Printf("[%s] %s %s: %s\n",
				m.CreatedAt.Format(time.TimeOnly), m.ConversationID, m.SenderID, m.Body)
		})
		sock.OnPresence(func(p hireline.PresenceRecord) {
			fmt.Printf("* %s is %s\n", p.UserID, p.Status)
		})
		sock.OnNotificationBatch(func(batch []hireline.Notification) {
			fmt.Printf("~ %d notification(s) while away\n", len(batch))
		})
		sock.OnNotification(func(n hireline.Notification) {
			fmt.Printf("~ %s: %s\n", n.SenderName, n.Snippet)
		})
		sock.OnDisconnected(func(reason string) {
			fmt.Printf("disconnected: %s\n", reason)
		})
		sock.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Printf("reconnecting (attempt %d, in %s)\n", attempt, delay)
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := sock.Dial(ctx); err != nil {
			return err
		}
		fmt.Println("Watching (Ctrl-C to stop)")
		<-ctx.Done()
		return nil
	},
}
