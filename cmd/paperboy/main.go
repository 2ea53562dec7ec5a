// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paperboy CLI, a batch
// pipeline that discovers conference papers, converts their PDFs to
// Markdown, summarizes them with a local model, and delivers the
// summaries to a read-later inbox.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lycheng/paperboy/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds credentials loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback if non-empty, else the secret value for key.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the paperboy CLI.
var rootCmd = &cobra.Command{
	Use:   "paperboy",
	Short: "Batch pipeline from conference listings to read-later summaries",
	Long: `paperboy discovers academic papers from a conference listing, downloads
their PDFs, converts them to Markdown, produces model-generated summaries,
and pushes the summaries to a read-later inbox.

Every paper's progress is tracked in a durable catalog, so runs are safe
to kill and re-run: completed stages are never repeated, failed stages
retry up to a per-stage ceiling, and a paper is pushed to the inbox at
most once.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paperboy.yaml or ~/.config/paperboy/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paperboy")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paperboy"))
		}
	}

	viper.SetEnvPrefix("PAPERBOY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
