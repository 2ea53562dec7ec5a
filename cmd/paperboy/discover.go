// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/lycheng/paperboy/internal/catalog"
	"github.com/lycheng/paperboy/internal/discover"
	"github.com/lycheng/paperboy/internal/pipeline"
	"github.com/lycheng/paperboy/pkg/types"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Query the paper listing and record unseen papers",
	Long: `Discover queries the configured listing source (a DBLP search, an HTML
proceedings page, or an RSS feed) and inserts papers not yet in the
catalog. Known papers are left untouched, whatever their stage.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().String("query", "", "listing query, e.g. \"ICLR 2024\" (overrides config)")
	discoverCmd.Flags().Int("max-pages", 0, "stop after this many listing pages (0 = until exhausted)")

	rootCmd.AddCommand(discoverCmd)
}

// newProvider builds the configured listing provider.
func newProvider(cfg types.DiscoveryConfig) (discover.Provider, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case types.ProviderDBLP:
		if cfg.Query == "" {
			return nil, fmt.Errorf("dblp provider requires discovery.query")
		}
		return &discover.DBLPProvider{
			Client:    client,
			Query:     cfg.Query,
			PageSize:  cfg.PageSize,
			UserAgent: cfg.UserAgent,
		}, nil
	case types.ProviderListing:
		if cfg.ListingURL == "" {
			return nil, fmt.Errorf("listing provider requires discovery.listing_url")
		}
		return &discover.ListingProvider{
			Client:    client,
			BaseURL:   cfg.ListingURL,
			UserAgent: cfg.UserAgent,
		}, nil
	case types.ProviderFeed:
		if cfg.ListingURL == "" {
			return nil, fmt.Errorf("feed provider requires discovery.listing_url")
		}
		return &discover.FeedProvider{URL: cfg.ListingURL}, nil
	}
	return nil, fmt.Errorf("unknown discovery provider %q", cfg.Provider)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if q, _ := cmd.Flags().GetString("query"); q != "" {
		cfg.Discovery.Query = q
	}
	if n, _ := cmd.Flags().GetInt("max-pages"); n > 0 {
		cfg.Discovery.MaxPages = n
	}

	provider, err := newProvider(cfg.Discovery)
	if err != nil {
		return err
	}

	store, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return err
	}
	defer store.Close()

	d := pipeline.NewDriver(store, nil, nil, nil, nil, cfg, os.Stdout)
	n, err := d.Discover(cmd.Context(), discover.New(provider, cfg.Discovery))
	if err != nil {
		return err
	}
	fmt.Printf("%d new papers discovered\n", n)
	return nil
}
