package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Complexia/durango-cli/internal/bridge"
	"github.com/Complexia/durango-cli/internal/config"
	"github.com/Complexia/durango-cli/internal/logger"
	"github.com/Complexia/durango-cli/internal/project"
	"github.com/Complexia/durango-cli/internal/relay"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "durango",
		Short: "durango — bridge a local coding agent to the durango web app",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		bridgeCmd(),
		statusCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func bridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			projectsPath, err := config.ProjectsPath()
			if err != nil {
				return err
			}
			projects, err := project.Load(projectsPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("durango %s connecting to %s\n", version, cfg.RelayURL)

			b := bridge.New(bridge.Options{
				Config:     cfg,
				CLIVersion: version,
				Projects:   projects,
			})
			err = b.Run(ctx)
			if ctx.Err() != nil {
				fmt.Println("shutting down...")
				return nil
			}
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this machine's relay status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			api := relay.NewAPI(cfg.RelayURL, cfg.Token)
			raw, err := api.MachineStatus(cmd.Context())
			if err != nil {
				return err
			}
			var pretty map[string]any
			if err := json.Unmarshal(raw, &pretty); err != nil {
				fmt.Println(string(raw))
				return nil
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
