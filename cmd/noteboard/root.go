package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"noteboard/api/internal/client"
	"noteboard/api/internal/wire"
)

var (
	serverURL   string
	token       string
	waitTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "noteboard",
	Short: "Terminal client for a shared note board",
	Long: `noteboard connects to a board server over its WebSocket sync channel.
Every connection gets an anonymous identity; pass --token to reuse one.`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("NOTEBOARD_SERVER", "ws://localhost:8787/api/ws"), "sync endpoint of the board server")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("NOTEBOARD_TOKEN"), "session token to resume")
	rootCmd.PersistentFlags().DurationVar(&waitTimeout, "timeout", 10*time.Second, "how long to wait for the server")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// connect dials the board and waits for an identity and the first snapshot.
func connect(ctx context.Context, onError func(wire.ErrorFrame)) (*client.Client, error) {
	c := client.Dial(ctx, client.Options{URL: serverURL, Token: token, OnError: onError})
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	select {
	case <-c.Ready():
	case <-timer.C:
		c.Close()
		return nil, fmt.Errorf("no answer from %s within %s", serverURL, waitTimeout)
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
	fmt.Fprintf(os.Stderr, "connected as %s (%s), token %s\n", c.Identity().DisplayName, c.Identity().Color, c.Token())
	select {
	case <-c.Snapshots():
	case <-timer.C:
		c.Close()
		return nil, fmt.Errorf("no snapshot from %s within %s", serverURL, waitTimeout)
	}
	return c, nil
}
