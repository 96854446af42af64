package main

import (
	"context"
	"fmt"
	"time"

	hireline "github.com/hireline-hq/hireline/sdk/golang"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and service reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		if cfg.Default.BaseURL != "" {
			fmt.Printf("  Base URL:    %s\n", cfg.Default.BaseURL)
		}
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token:       %s\n", maskKey(cfg.Auth.Token))
			fmt.Printf("  User ID:     %s\n", valueOrDefault(cfg.Auth.UserID, "(not set)"))
		} else {
			fmt.Println("  Token:       (not set)")
		}

		if cfg.Auth.Token == "" {
			return nil
		}

		fmt.Println()
		fmt.Println("Live status:")
		client := hireline.NewClient(cfg.Auth.Token, clientOptions(cfg)...)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		result, err := client.Health(ctx)
		if err != nil {
			fmt.Printf("  Unreachable: %v\n", err)
			return nil
		}
		if !result.OK {
			if result.Error != nil {
				fmt.Printf("  API error: %s: %s\n", result.Error.Code, result.Error.Message)
			} else {
				fmt.Println("  API returned an error (no details)")
			}
			return nil
		}
		fmt.Println("  Reachable")

		convs, err := client.ListConversations(ctx)
		if err != nil {
			fmt.Printf("  Error listing conversations: %v\n", err)
			return nil
		}
		fmt.Printf("  Conversations: %d\n", len(convs))
		return nil
	},
}

// maskKey shows the first 12 and last 4 characters of a key.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 16 {
		if len(key) <= 8 {
			return "..."
		}
		return key[:4] + "..." + key[len(key)-4:]
	}
	return key[:12] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
