package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/siteqa/internal/buildtest"
	"git.home.luguber.info/inful/siteqa/internal/catalog"
	"git.home.luguber.info/inful/siteqa/internal/checks"
	"git.home.luguber.info/inful/siteqa/internal/config"
	"git.home.luguber.info/inful/siteqa/internal/events"
	"git.home.luguber.info/inful/siteqa/internal/linkcache"
	"git.home.luguber.info/inful/siteqa/internal/linkcheck"
	"git.home.luguber.info/inful/siteqa/internal/metrics"
	"git.home.luguber.info/inful/siteqa/internal/version"
)

var CLI struct {
	Config      string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose     bool   `short:"v" help:"Enable verbose logging"`
	MetricsAddr string `help:"Expose Prometheus metrics on this address (e.g. :9464)"`

	Verify struct {
		ExternalOnly bool `help:"Check only external catalog links"`
		Warn         bool `short:"w" help:"Report dead links and transport failures as warnings instead of failing"`
	} `cmd:"" help:"Run every build test against the generated site"`

	Links struct {
		ExternalOnly bool `help:"Check only external catalog links"`
		Warn         bool `short:"w" help:"Report dead links and transport failures as warnings instead of failing"`
		Concurrency  int  `help:"Override the configured request concurrency limit"`
	} `cmd:"" help:"Verify catalog links only"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if kctx.Command() == "version" {
		fmt.Println(version.Info())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	recorder := setupMetrics()

	var runErr error
	switch kctx.Command() {
	case "verify":
		runErr = runVerify(ctx, cfg, recorder, CLI.Verify.ExternalOnly, CLI.Verify.Warn, 0)
	case "links":
		runErr = runLinks(ctx, cfg, recorder, CLI.Links.ExternalOnly, CLI.Links.Warn, CLI.Links.Concurrency)
	}

	if runErr != nil {
		if fe, ok := buildtest.AsFailure(runErr); ok {
			slog.Error("Verification failed", "test", fe.Test, "findings", len(fe.Result.Output))
		} else {
			slog.Error("Verification aborted", "error", runErr)
		}
		os.Exit(1)
	}
}

// setupMetrics wires the Prometheus recorder and, when requested, serves the
// scrape endpoint in the background for the lifetime of the run.
func setupMetrics() metrics.Recorder {
	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	if CLI.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: CLI.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "addr", CLI.MetricsAddr, "error", err)
			}
		}()
		slog.Debug("Serving metrics", "addr", CLI.MetricsAddr)
	}
	return recorder
}

// runVerify executes the full build test sequence in catalog order: links
// first, then code samples, template variables, and anchors.
func runVerify(ctx context.Context, cfg *config.Config, recorder metrics.Recorder, externalOnly, warn bool, concurrency int) error {
	linkTest, cleanup, err := buildLinkTest(cfg, recorder, externalOnly, warn, concurrency)
	if err != nil {
		return err
	}
	defer cleanup()

	tests := []buildtest.BuildTest{linkTest}
	if cfg.Codeblocks.Dir != "" {
		tests = append(tests, checks.NewCodeblockTest(cfg.Codeblocks.Dir))
	}
	if cfg.Templates.Dir != "" && len(cfg.Templates.Pages) > 0 {
		tests = append(tests, checks.NewTemplateVarsTest(cfg.Templates.Dir, cfg.Templates.Pages, cfg.Templates.Context))
	}
	if cfg.Site.Dir != "" {
		cat, err := catalog.Load(cfg.Links.Catalog)
		if err != nil {
			return err
		}
		tests = append(tests, checks.NewAnchorTest(cfg.Site.Dir, cfg.Site.BaseURL, cat))
	}

	return buildtest.NewRunner(os.Stdout, recorder).Run(ctx, tests...)
}

func runLinks(ctx context.Context, cfg *config.Config, recorder metrics.Recorder, externalOnly, warn bool, concurrency int) error {
	linkTest, cleanup, err := buildLinkTest(cfg, recorder, externalOnly, warn, concurrency)
	if err != nil {
		return err
	}
	defer cleanup()

	return buildtest.NewRunner(os.Stdout, recorder).Run(ctx, linkTest)
}

// buildLinkTest assembles the link checker from configuration plus command
// line overrides. The returned cleanup closes the result cache and the event
// publisher connection.
func buildLinkTest(cfg *config.Config, recorder metrics.Recorder, externalOnly, warn bool, concurrency int) (*checks.LinkTest, func(), error) {
	cat, err := catalog.Load(cfg.Links.Catalog)
	if err != nil {
		return nil, nil, err
	}

	timeout, err := cfg.Links.Timeout()
	if err != nil {
		return nil, nil, err
	}

	policy := linkcheck.Policy{
		MaxConcurrent:      cfg.Links.MaxConcurrent,
		Timeout:            timeout,
		TolerateTLSErrors:  cfg.Links.TolerateTLSErrors,
		TolerateHTTPErrors: cfg.Links.TolerateHTTPErrors,
	}
	if warn {
		policy.TolerateTLSErrors = true
		policy.TolerateHTTPErrors = true
	}
	if concurrency > 0 {
		policy.MaxConcurrent = concurrency
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	opts := []linkcheck.Option{linkcheck.WithRecorder(recorder)}

	if cfg.Links.Cache.Enabled {
		ttl, err := cfg.Links.Cache.ParsedTTL()
		if err != nil {
			return nil, nil, err
		}
		store, err := linkcache.Open(cfg.Links.Cache.Path, ttl)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open link result cache: %w", err)
		}
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				slog.Warn("Failed to close link result cache", "error", err)
			}
		})
		opts = append(opts, linkcheck.WithCache(store))
	}

	if cfg.Links.NATS.URL != "" {
		pub, err := events.NewNATSPublisher(cfg.Links.NATS.URL, cfg.Links.NATS.Subject)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect event publisher: %w", err)
		}
		closers = append(closers, func() {
			if err := pub.Close(); err != nil {
				slog.Warn("Failed to close event publisher", "error", err)
			}
		})
		opts = append(opts, linkcheck.WithPublisher(pub))
	}

	checker, err := linkcheck.New(policy, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return checks.NewLinkTest(checker, cat, externalOnly || cfg.Links.ExternalOnly, warn), cleanup, nil
}
