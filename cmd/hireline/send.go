package main

import (
	"context"
	"fmt"
	"time"

	hireline "github.com/hireline-hq/hireline/sdk/golang"
	"github.com/spf13/cobra"
)

var (
	sendReceiver     string
	sendConversation string
)

func init() {
	sendCmd.Flags().StringVar(&sendReceiver, "to", "", "receiver user id (starts a direct conversation)")
	sendCmd.Flags().StringVar(&sendConversation, "conversation", "", "existing conversation id")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <body>",
	Short: "Send one message and wait for the acknowledgment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (sendReceiver == "") == (sendConversation == "") {
			return fmt.Errorf("exactly one of --to or --conversation is required")
		}

		msgr, _ := getMessenger()
		defer msgr.Close()

		msgr.OnAlert(func(a hireline.Alert) {
			fmt.Printf("! %s: %s\n", a.Title, a.Description)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := msgr.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}

		msg, err := msgr.SendMessage(ctx, sendConversation, sendReceiver, args[0])
		if err != nil {
			return err
		}
		if msg.Key() == "" {
			fmt.Println("Nothing to send (empty body)")
			return nil
		}

		// The optimistic entry has resolved by now; read it back through the
		// merged view to report its final state.
		view := msgr.MergedConversation(&hireline.Conversation{ID: sendConversation})
		if view.LastMessage != nil {
			fmt.Printf("Status: %s", view.LastMessage.Status)
			if view.LastMessage.ID != "" {
				fmt.Printf("  id=%s", view.LastMessage.ID)
			}
			fmt.Println()
			return nil
		}
		fmt.Printf("Status: %s\n", msg.Status)
		return nil
	},
}
