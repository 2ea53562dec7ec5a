// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lycheng/paperboy/internal/catalog"
	"github.com/lycheng/paperboy/internal/container"
	"github.com/lycheng/paperboy/internal/convert"
	"github.com/lycheng/paperboy/internal/discover"
	"github.com/lycheng/paperboy/internal/fetch"
	"github.com/lycheng/paperboy/internal/pipeline"
	"github.com/lycheng/paperboy/internal/publish"
	"github.com/lycheng/paperboy/internal/summarize"
	"github.com/lycheng/paperboy/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Advance every pending paper through the pipeline",
	Long: `Run advances each non-terminal paper through fetch, convert, summarize,
and publish, committing progress to the catalog after every stage. A
failed stage is retried on the next run until its attempt ceiling, after
which the paper is marked failed.

With --every, run repeats on the given interval until interrupted; with
--discover, each cycle queries the listing for new papers first.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().Bool("discover", false, "query the listing for new papers before advancing")
	runCmd.Flags().Duration("every", 0, "repeat on this interval (default: run once)")

	rootCmd.AddCommand(runCmd)
}

// newConversionEngine builds the configured conversion backend.
func newConversionEngine(cfg types.ConversionConfig) (convert.Engine, error) {
	switch cfg.Backend {
	case types.BackendRemote:
		if cfg.ServiceURL == "" {
			return nil, fmt.Errorf("remote conversion requires convert.service_url")
		}
		return &convert.RemoteEngine{
			Client:       &http.Client{Timeout: cfg.Timeout},
			BaseURL:      cfg.ServiceURL,
			UserAgent:    cfg.UserAgent,
			AuthToken:    cfg.AuthToken,
			PollInterval: cfg.PollInterval,
			PollBudget:   cfg.PollBudget,
		}, nil
	case types.BackendContainer:
		rt, err := container.Detect()
		if err != nil {
			return nil, err
		}
		return convert.NewContainerEngine(rt)
	}
	return nil, fmt.Errorf("unknown conversion backend %q", cfg.Backend)
}

// newDriver wires every stage component to the catalog.
func newDriver(store *catalog.Store, cfg types.PipelineConfig) (*pipeline.Driver, error) {
	fetcher := fetch.New(&http.Client{Timeout: cfg.Fetch.Timeout}, cfg.Fetch)

	engine, err := newConversionEngine(cfg.Convert)
	if err != nil {
		return nil, err
	}
	converter := convert.NewAdapter(engine, cfg.Convert)

	summarizer, err := summarize.New(summarize.NewOllamaEngine(cfg.Summary), cfg.Summary)
	if err != nil {
		return nil, err
	}

	if cfg.Publish.APIURL == "" {
		return nil, fmt.Errorf("no inbox endpoint: set publish.api_url or .secrets/cubox-api-url")
	}
	publisher := publish.New(publish.NewCuboxInbox(cfg.Publish), cfg.Publish)

	return pipeline.NewDriver(store, fetcher, converter, summarizer, publisher, cfg, os.Stdout), nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	withDiscovery, _ := cmd.Flags().GetBool("discover")
	every, _ := cmd.Flags().GetDuration("every")

	store, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	for {
		if err := runOnce(ctx, store, cfg, withDiscovery); err != nil {
			if every <= 0 {
				return err
			}
			// On a schedule, a failed cycle is reported and the next
			// cycle still runs.
			fmt.Fprintf(os.Stderr, "cycle failed: %v\n", err)
		}

		if every <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}

func runOnce(ctx context.Context, store *catalog.Store, cfg types.PipelineConfig, withDiscovery bool) error {
	d, err := newDriver(store, cfg)
	if err != nil {
		return err
	}

	rep := pipeline.Report{}
	if withDiscovery {
		provider, err := newProvider(cfg.Discovery)
		if err != nil {
			return err
		}
		n, err := d.Discover(ctx, discover.New(provider, cfg.Discovery))
		if err != nil {
			// Listing failures never block papers already in the catalog.
			fmt.Fprintf(os.Stderr, "discovery failed: %v\n", err)
		}
		rep.Discovered = n
	}

	runRep, err := d.Run(ctx)
	if err != nil {
		return err
	}
	runRep.Discovered = rep.Discovered
	runRep.Write(os.Stdout)
	return nil
}
