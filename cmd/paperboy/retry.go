// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lycheng/paperboy/internal/catalog"
	"github.com/lycheng/paperboy/internal/pipeline"
)

var retryCmd = &cobra.Command{
	Use:   "retry [ids...]",
	Short: "Return failed papers to their last completed stage",
	Long: `Retry resets one or more failed papers so the next run reattempts the
stage that failed, with a fresh attempt budget for that stage. Artifacts
from completed stages are kept: a paper that failed at publish keeps its
summary and is pushed without being resummarized.`,
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more failed paper ids")
	}

	cfg := pipelineConfig()
	store, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	d := pipeline.NewDriver(store, nil, nil, nil, nil, cfg, os.Stdout)

	failures := 0
	for _, id := range args {
		if err := d.ForceRetry(cmd.Context(), id); err != nil {
			fmt.Fprintf(os.Stderr, "retry %s: %v\n", id, err)
			failures++
			continue
		}
		fmt.Printf("retry scheduled for %s\n", id)
	}
	if failures > 0 {
		return fmt.Errorf("%d paper(s) could not be reset", failures)
	}
	return nil
}
