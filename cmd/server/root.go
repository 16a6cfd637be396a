package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func getConfigPath() string {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}

// newRootCommand builds the eggcount CLI; running it without a subcommand serves HTTP
func newRootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "eggcount",
		Short:         "Egg counting results backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "Path to the YAML configuration file")

	serveCmd := serveCommand(&configPath)
	rootCmd.RunE = serveCmd.RunE
	rootCmd.AddCommand(serveCmd, resultsCommand(&configPath))

	return rootCmd
}
