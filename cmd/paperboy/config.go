// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/lycheng/paperboy/internal/secrets"
	"github.com/lycheng/paperboy/pkg/types"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultUserAgent = "paperboy/0.1"
)

// pipelineConfig assembles the full pipeline configuration from the
// config file, environment, and secrets. Unset keys get the defaults
// documented in pkg/types.
func pipelineConfig() types.PipelineConfig {
	v := viper.GetViper()

	v.SetDefault("catalog.path", filepath.Join("catalog", "paperboy.db"))
	v.SetDefault("catalog.claim_ttl", 30*time.Minute)

	v.SetDefault("discovery.provider", string(types.ProviderDBLP))
	v.SetDefault("discovery.page_size", 100)
	v.SetDefault("discovery.page_delay", 2*time.Second)

	v.SetDefault("papers_dir", "papers")
	v.SetDefault("fetch.download_delay", 1*time.Second)

	v.SetDefault("convert.backend", string(types.BackendRemote))
	v.SetDefault("convert.poll_interval", 2*time.Second)
	v.SetDefault("convert.poll_budget", 5*time.Minute)

	v.SetDefault("summary.model", "qwen2.5:72b-32k")
	v.SetDefault("summary.timeout", 2*time.Minute)
	v.SetDefault("summary.context_budget", 4000)

	v.SetDefault("publish.max_content_length", 3000)

	papersDir := v.GetString("papers_dir")

	retryFor := func(prefix string) types.RetryConfig {
		cfg := types.RetryConfig{
			MaxAttempts: v.GetInt(prefix + ".retry.max_attempts"),
			BaseDelay:   v.GetDuration(prefix + ".retry.base_delay"),
		}
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = 3
		}
		if cfg.BaseDelay <= 0 {
			cfg.BaseDelay = time.Second
		}
		return cfg
	}

	httpFor := func(prefix string) types.HTTPConfig {
		cfg := types.HTTPConfig{
			Timeout:   v.GetDuration(prefix + ".timeout"),
			UserAgent: v.GetString(prefix + ".user_agent"),
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = defaultTimeout
		}
		if cfg.UserAgent == "" {
			cfg.UserAgent = defaultUserAgent
		}
		return cfg
	}

	cfg := types.PipelineConfig{
		Catalog: types.CatalogConfig{
			Path:     v.GetString("catalog.path"),
			ClaimTTL: v.GetDuration("catalog.claim_ttl"),
		},
		Discovery: types.DiscoveryConfig{
			HTTPConfig: httpFor("discovery"),
			Retry:      retryFor("discovery"),
			Provider:   types.DiscoveryProvider(v.GetString("discovery.provider")),
			Query:      v.GetString("discovery.query"),
			ListingURL: v.GetString("discovery.listing_url"),
			PageSize:   v.GetInt("discovery.page_size"),
			MaxPages:   v.GetInt("discovery.max_pages"),
			PageDelay:  v.GetDuration("discovery.page_delay"),
		},
		Fetch: types.FetchConfig{
			HTTPConfig:    httpFor("fetch"),
			Retry:         retryFor("fetch"),
			PapersDir:     papersDir,
			DownloadDelay: v.GetDuration("fetch.download_delay"),
		},
		Convert: types.ConversionConfig{
			HTTPConfig:   httpFor("convert"),
			Retry:        retryFor("convert"),
			Backend:      types.ConversionBackend(v.GetString("convert.backend")),
			ServiceURL:   v.GetString("convert.service_url"),
			AuthToken:    secretDefault(secrets.KeyConversionAuth, v.GetString("convert.auth_token")),
			PollInterval: v.GetDuration("convert.poll_interval"),
			PollBudget:   v.GetDuration("convert.poll_budget"),
			PapersDir:    papersDir,
		},
		Summary: types.SummaryConfig{
			Retry:            retryFor("summary"),
			BaseURL:          v.GetString("summary.base_url"),
			Model:            v.GetString("summary.model"),
			Timeout:          v.GetDuration("summary.timeout"),
			ContextBudget:    v.GetInt("summary.context_budget"),
			PromptFile:       v.GetString("summary.prompt_file"),
			ReducePromptFile: v.GetString("summary.reduce_prompt_file"),
		},
		Publish: types.PublishConfig{
			HTTPConfig:       httpFor("publish"),
			Retry:            retryFor("publish"),
			APIURL:           secretDefault(secrets.KeyCuboxAPIURL, v.GetString("publish.api_url")),
			Folder:           v.GetString("publish.folder"),
			MaxContentLength: v.GetInt("publish.max_content_length"),
			MaxPerRun:        v.GetInt("publish.max_per_run"),
		},
		Workers: types.WorkerConfig{
			Fetch:     v.GetInt("workers.fetch"),
			Convert:   v.GetInt("workers.convert"),
			Summarize: v.GetInt("workers.summarize"),
			Publish:   v.GetInt("workers.publish"),
		},
	}

	if ceilings := v.GetStringMapString("ceilings"); len(ceilings) > 0 {
		cfg.Ceilings = make(map[types.Stage]int, len(ceilings))
		for stage := range ceilings {
			cfg.Ceilings[types.Stage(stage)] = v.GetInt("ceilings." + stage)
		}
	}

	return cfg
}
