package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/HMasataka/streamhub/internal/app"
	"github.com/HMasataka/streamhub/internal/config"
	"github.com/HMasataka/streamhub/internal/logging"
	"github.com/HMasataka/streamhub/pkg/client"
	"github.com/HMasataka/streamhub/pkg/domain"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "streamhub",
		Short:        "Real-time data streaming server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newTailCommand())
	root.AddCommand(newPolicyCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the streaming server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(config.LoadOptions{Path: path})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level, _ = cmd.Flags().GetString("log-level")
			}

			logger := logging.New(cfg.Logging)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringP("config", "c", "", "path to a YAML or JSON config file")
	cmd.Flags().Int("port", 0, "listen port, overrides the config file")
	cmd.Flags().String("log-level", "", "debug|info|warn|error")
	return cmd
}

func newTailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail STREAM_ID",
		Short: "Subscribe to a stream and print the data pushed to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			clientID, _ := cmd.Flags().GetString("client-id")

			serverURL, err := url.Parse(server)
			if err != nil {
				return fmt.Errorf("invalid server URL: %w", err)
			}
			if clientID == "" {
				clientID = "tail-" + xid.New().String()
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c := client.New(*serverURL, domain.ClientID(clientID), client.DefaultOptions())
			if err := c.Connect(ctx); err != nil {
				return err
			}
			defer c.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			c.OnStreamData(func(data domain.StreamData) {
				enc.Encode(data)
			})

			stopped := make(chan struct{})
			var once sync.Once
			c.OnMessage(domain.MessageTypeStreamStopped, func(*domain.Message) {
				once.Do(func() { close(stopped) })
			})

			streamID := domain.StreamID(args[0])
			if _, err := c.Subscribe(ctx, streamID); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
			case <-c.Done():
				return fmt.Errorf("connection closed")
			case <-stopped:
				fmt.Fprintln(cmd.ErrOrStderr(), "stream stopped")
				return nil
			}

			unsubscribeCtx, unsubscribeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unsubscribeCancel()
			return c.Unsubscribe(unsubscribeCtx, streamID)
		},
	}
	cmd.Flags().String("server", "ws://localhost:3000/ws", "gateway websocket URL")
	cmd.Flags().String("client-id", "", "client id to subscribe as, generated when empty")
	return cmd
}

func newPolicyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Print the stream configuration applied to each data type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writePolicies(cmd)
		},
	}
}

func writePolicies(cmd *cobra.Command) error {
	types := domain.DataTypes()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATA TYPE\tMAX SUBSCRIBERS\tRETENTION\tCOMPRESSION\tENCRYPTION\tQOS\tHEARTBEAT")
	for _, dt := range types {
		cfg := domain.ConfigurationFor(dt)
		fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%t\t%s\t%s\n",
			dt, cfg.MaxSubscribers, cfg.MessageRetention, cfg.CompressionEnabled,
			cfg.EncryptionEnabled, cfg.QualityOfService, cfg.HeartbeatInterval)
	}
	return w.Flush()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
