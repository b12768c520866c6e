// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emausjovem/comunidade/backend/client/remote"
	"github.com/emausjovem/comunidade/backend/config"
	"github.com/emausjovem/comunidade/backend/logger"
)

var (
	version = "dev"

	env = config.LoadClient()

	serverURL string
	token     string
	verbose   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command line client for the comunidade messaging server",
	Long: `chatctl lists groups and members, opens direct threads, follows a
conversation live and sends messages to it.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(logger.NewContextHandler(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))))
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", env.Server, "server base URL (default $COMUNIDADE_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", env.Token, "bearer token (default $COMUNIDADE_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() (*remote.Client, error) {
	if token == "" {
		return nil, fmt.Errorf("no token: pass --token or set COMUNIDADE_TOKEN")
	}
	return remote.New(serverURL, token)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
