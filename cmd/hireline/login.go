package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token> <user-id>",
	Short: "Store the session credential",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth.Token = args[0]
		cfg.Auth.UserID = args[1]
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", cfg.Auth.UserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Auth.Token = ""
		cfg.Auth.UserID = ""
		if err := saveConfig(cfg); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}
