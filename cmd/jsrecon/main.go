// jsrecon is a JavaScript reverse-engineering workbench served over
// MCP: an agent drives a real Chrome instance, harvests scripts and
// traffic, and runs layered static and dynamic analysis on them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jsrecon/internal/config"
	"jsrecon/internal/logging"
	"jsrecon/internal/server"
)

var version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "jsrecon",
		Short:        "JavaScript reverse-engineering workbench",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".jsrecon/config.yaml", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool surface over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := logging.Initialize(ws); err != nil {
				fmt.Fprintf(os.Stderr, "logging init: %v\n", err)
			}
			defer logging.CloseAll()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if watcher, werr := config.WatchLogging(configPath); werr == nil && watcher != nil {
				defer watcher.Close()
			}

			srv, err := server.New(cfg, version)
			if err != nil {
				return err
			}
			logging.Boot("jsrecon %s starting", version)
			return srv.Serve()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("jsrecon %s\n", version)
		},
	}

	root.AddCommand(serve, versionCmd)
	return root
}
