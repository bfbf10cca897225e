package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zpam/bayescore/pkg/config"
	"github.com/zpam/bayescore/pkg/milter"
)

var (
	serveNetwork string
	serveAddress string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the milter server for MTA integration",
	Long: `serve starts the milter server, listening on a TCP or Unix socket and
scoring messages in real time as an MTA (Postfix, Sendmail) delivers them.

For Postfix integration, add to main.cf:
  smtpd_milters = inet:127.0.0.1:7357
  non_smtpd_milters = inet:127.0.0.1:7357
  milter_default_action = accept`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %v", err)
	}

	if cmd.Flags().Changed("network") {
		cfg.Milter.Network = serveNetwork
	}
	if cmd.Flags().Changed("address") {
		cfg.Milter.Address = serveAddress
	}
	cfg.Milter.Enabled = true

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	listener, err := net.Listen(cfg.Milter.Network, cfg.Milter.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	defer listener.Close()

	server, err := milter.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create milter server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("milter server listening on %s://%s\n", cfg.Milter.Network, cfg.Milter.Address)
		fmt.Printf("reject threshold: %.2f\n", cfg.Milter.RejectThreshold)
		if configFile != "" {
			fmt.Printf("configuration: %s\n", configFile)
		}
		serverErr <- server.Serve(ctx, listener)
	}()

	select {
	case <-sigChan:
		fmt.Printf("\nshutdown signal received, stopping milter server...\n")
		shutdownCtx, shutdownCancel := context.WithTimeout(
			context.Background(),
			time.Duration(cfg.Milter.GracefulShutdownTimeout)*time.Millisecond,
		)
		defer shutdownCancel()
		cancel()

		select {
		case err := <-serverErr:
			if err != nil && err != context.Canceled {
				fmt.Printf("server shutdown with error: %v\n", err)
			} else {
				fmt.Printf("milter server stopped gracefully\n")
			}
		case <-shutdownCtx.Done():
			fmt.Printf("shutdown timeout exceeded, forcing stop\n")
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("milter server error: %v", err)
		}
	}

	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveNetwork, "network", "n", "", "Network type (tcp or unix), overrides config")
	serveCmd.Flags().StringVarP(&serveAddress, "address", "a", "", "Bind address, overrides config")
}
