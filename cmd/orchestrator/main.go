// Command orchestrator is a thin wiring entry point: config → auth
// chain → rate-limit tracker → response cache → CLI driver →
// conversation store / agent supervisor → orchestration loop, driving
// one request end-to-end for manual smoke-testing.
//
// Grounded on cmd/example/main.go's flag-based wiring (the teacher
// never reaches for cobra despite it being available elsewhere in the
// retrieval pack).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaywork/modelbroker/pkg/authchain"
	"github.com/relaywork/modelbroker/pkg/clidriver"
	"github.com/relaywork/modelbroker/pkg/llm"
	"github.com/relaywork/modelbroker/pkg/modelrouter"
	"github.com/relaywork/modelbroker/pkg/orchconfig"
	"github.com/relaywork/modelbroker/pkg/orchlog"
	"github.com/relaywork/modelbroker/pkg/ratelimit"
	"github.com/relaywork/modelbroker/pkg/respcache"
)

func main() {
	workerPath := flag.String("worker", "", "path to the worker CLI executable")
	prompt := flag.String("prompt", "what is 2+2", "task prompt to send")
	toolTag := flag.String("tool-tag", "ask_gemini", "categorical tool tag used for complexity classification")
	configFile := flag.String("config", "", "optional on-disk configuration override file")
	stateDir := flag.String("state-dir", defaultStateDir(), "directory for persisted cache/session state")
	flag.Parse()

	if *workerPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -worker is required")
		os.Exit(1)
	}

	var cfgOpts []orchconfig.Option
	if *configFile != "" {
		cfgOpts = append(cfgOpts, orchconfig.WithOverrideFile(*configFile))
	}
	cfg, err := orchconfig.Load(cfgOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	chain := buildAuthChain(cfg)
	tracker := ratelimit.New(
		ratelimit.WithThreshold(cfg.FailureThreshold),
		ratelimit.WithCooldown(cfg.CooldownWindow),
	)
	registry := modelrouter.NewRegistry(defaultModels())
	authSatisfied := func(v authchain.Variant) bool {
		return chain.Active() != nil
	}
	reliableDefault := cfg.DefaultModel
	if reliableDefault == "" {
		reliableDefault = "sonnet"
	}
	router := modelrouter.New(registry, tracker.Available, authSatisfied, reliableDefault)

	cache := respcache.New(
		respcache.WithTTL(cfg.CacheTTL),
		respcache.WithMaxEntries(cfg.CacheMaxEntries),
	)
	cachePath := filepath.Join(*stateDir, "response-cache.json")
	if err := cache.Load(cachePath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load response cache: %v\n", err)
	}
	defer func() {
		if err := cache.Persist(cachePath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to persist response cache: %v\n", err)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go cache.Watch(watchCtx, cachePath)
	if *configFile != "" {
		go orchconfig.Watch(watchCtx, *configFile, func(reloaded orchconfig.Config, err error) {
			if err == nil {
				tracker.ApplyLimits(reloaded.FailureThreshold, reloaded.CooldownWindow)
			}
		})
	}

	logger := orchlog.NewProduction()
	defer logger.Sync()

	driverOpts := []clidriver.Option{clidriver.WithLogger(logger)}
	if cfg.AggregatorKey != "" {
		aggregator := llm.NewCapabilityAdapter(llm.ClientConfig{
			BaseURL: cfg.AggregatorBaseURL,
			APIKey:  cfg.AggregatorKey,
		})
		driverOpts = append(driverOpts, clidriver.WithAggregator(aggregator))
	}

	driver := clidriver.New(*workerPath, router, tracker, chain, respcache.NewDriverCache(cache), driverOpts...)

	result, err := driver.Execute(context.Background(), *prompt, clidriver.ExecOptions{ToolTag: *toolTag})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("model: %s\n", result.Model)
	fmt.Printf("cached: %v\n", result.Cached)
	fmt.Println("---")
	fmt.Println(result.ResponseText)
}

func buildAuthChain(cfg orchconfig.Config) *authchain.Chain {
	var creds []*authchain.Credential
	creds = append(creds, &authchain.Credential{Variant: authchain.VariantOAuth, Label: "oauth"})
	if cfg.GenericAPIKey != "" {
		creds = append(creds, &authchain.Credential{Variant: authchain.VariantAPIKey, Label: "api-key", Secret: cfg.GenericAPIKey})
	}
	if cfg.EnterpriseKey != "" {
		creds = append(creds, &authchain.Credential{
			Variant:  authchain.VariantEnterpriseKey,
			Label:    "enterprise-key",
			Secret:   cfg.EnterpriseKey,
			Project:  cfg.EnterpriseProject,
			Location: cfg.EnterpriseRegion,
		})
	}
	if cfg.AggregatorKey != "" {
		creds = append(creds, &authchain.Credential{Variant: authchain.VariantMarketplaceKey, Label: "aggregator", Secret: cfg.AggregatorKey})
	}
	return authchain.New(creds)
}

func defaultModels() []modelrouter.Model {
	return []modelrouter.Model{
		{Name: "flash", Tier: modelrouter.TierFastest, InputPerMTok: 0.075, OutputPerMTok: 0.30},
		{Name: "sonnet", Tier: modelrouter.TierStandard, InputPerMTok: 3, OutputPerMTok: 15},
		{Name: "opus", Tier: modelrouter.TierMostCapable, InputPerMTok: 15, OutputPerMTok: 75},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchestrator"
	}
	return filepath.Join(home, ".orchestrator")
}
