// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lycheng/paperboy/internal/catalog"
	"github.com/lycheng/paperboy/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show paper counts per stage and failure details",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Bool("failed", false, "list failed papers with their last error")

	rootCmd.AddCommand(statusCmd)
}

// statusOrder lists stages in the order the status table prints them.
var statusOrder = []types.Stage{
	types.StageDiscovered,
	types.StageFetched,
	types.StageConverted,
	types.StageSummarized,
	types.StagePublished,
	types.StageFailed,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	store, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	counts, err := store.CountsByStage(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, stage := range statusOrder {
		n := counts[stage]
		total += n
		fmt.Printf("%-12s %d\n", stage, n)
	}
	fmt.Printf("%-12s %d\n", "total", total)

	showFailed, _ := cmd.Flags().GetBool("failed")
	if !showFailed {
		return nil
	}

	failed, err := store.Failed(ctx)
	if err != nil {
		return err
	}
	for _, p := range failed {
		fmt.Printf("\n%s\n  failed at: %s\n  attempts:  %d\n  error:     %s\n",
			p.ID, p.FailedAt, p.AttemptCount(p.FailedAt), p.LastError)
	}
	return nil
}
