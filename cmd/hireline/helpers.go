package main

import (
	"fmt"
	"os"

	hireline "github.com/hireline-hq/hireline/sdk/golang"
)

// clientOptions builds SDK options from the config.
func clientOptions(cfg *Config) []hireline.ClientOption {
	var opts []hireline.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, hireline.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, hireline.WithEnvironment(hireline.Environment(cfg.Default.Environment)))
	}
	return opts
}

// getClient creates an authenticated REST client or exits.
func getClient() (*hireline.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'hireline login <token> <user-id>' first.")
		os.Exit(1)
	}
	return hireline.NewClient(cfg.Auth.Token, clientOptions(cfg)...), cfg
}

// getMessenger creates a messaging facade wired to the configured session.
func getMessenger() (*hireline.Messenger, *Config) {
	client, cfg := getClient()
	if cfg.Auth.UserID == "" {
		fmt.Fprintln(os.Stderr, "No user id. Run 'hireline login <token> <user-id>' first.")
		os.Exit(1)
	}
	msgr := hireline.NewMessenger(client, &hireline.MessengerConfig{
		Token:  cfg.Auth.Token,
		UserID: cfg.Auth.UserID,
	})
	return msgr, cfg
}
