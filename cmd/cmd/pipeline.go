package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"factweave/internal/config"
	"factweave/internal/core"
	"factweave/internal/digest"
	"factweave/internal/hydrate"
	"factweave/internal/ingest"
	"factweave/internal/logger"
	"factweave/internal/orchestrator"
	"factweave/internal/provenance"
	"factweave/internal/publish"

	"github.com/spf13/cobra"
)

// signalContext returns a context cancelled on SIGINT/SIGTERM. The handler
// only cancels the context; nothing in the shutdown path can block on a lock
// held elsewhere.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply fact store schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		if err := s.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll feeds and the events export once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		n, err := ingest.New(s, config.Get().Ingest).IngestOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("ingest: %d new articles\n", n)
		return nil
	},
}

var hydratePlainHTTP bool

var hydrateCmd = &cobra.Command{
	Use:   "hydrate",
	Short: "Scrape body text for one batch of pending articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		extractor, closeExtractor := newHydrationExtractor(hydratePlainHTTP)
		defer func() { _ = closeExtractor() }()

		summary, err := hydrate.New(s, extractor, config.Get().Pipeline).HydrateOnce(ctx)
		if err != nil {
			return err
		}
		printSummary("hydrate", summary.Processed, summary.Skipped, summary.Failed)
		return nil
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Extract, embed, and persist facts for one batch of articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		client, err := newLLM()
		if err != nil {
			return err
		}

		d := digest.New(s, client, client, newFallbackExtractor(), config.Get().Pipeline)
		summary, err := d.ProcessBatch(ctx)
		if err != nil {
			return err
		}
		printSummary("digest", summary.Processed, summary.Skipped, summary.Failed)
		return nil
	},
}

var huntCmd = &cobra.Command{
	Use:   "hunt",
	Short: "Provenance-check one batch of unchecked facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		provider, err := newSearchProvider()
		if err != nil {
			return err
		}

		summary, err := provenance.New(s, provider, config.Get().Pipeline).HuntOnce(ctx)
		if err != nil {
			return err
		}
		printSummary("hunt", summary.Processed, summary.Skipped, summary.Failed)
		return nil
	},
}

var publishDump bool

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Sync verified facts into the knowledge graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		g, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = g.Close(ctx) }()

		p := publish.New(s, g)
		if publishDump {
			payload, err := p.BuildPayload(ctx)
			if err != nil {
				return err
			}
			data, err := publish.Encode(payload)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		}

		summary, err := p.SyncOnce(ctx)
		if err != nil {
			return err
		}
		printSummary("publish", summary.Processed, summary.Skipped, summary.Failed)
		return nil
	},
}

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline on its configured schedule",
	Long: `Run every pipeline stage in-process on a fixed rotation: ingest,
hydrate, digest, provenance, publish. With --once each stage runs a single
time in order and the process exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg := config.Get()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		g, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = g.Close(context.Background()) }()

		client, err := newLLM()
		if err != nil {
			return err
		}
		provider, err := newSearchProvider()
		if err != nil {
			return err
		}

		extractor, closeExtractor := newHydrationExtractor(hydratePlainHTTP)
		defer func() { _ = closeExtractor() }()

		ingester := ingest.New(s, cfg.Ingest)
		hydrator := hydrate.New(s, extractor, cfg.Pipeline)
		digester := digest.New(s, client, client, newFallbackExtractor(), cfg.Pipeline)
		hunter := provenance.New(s, provider, cfg.Pipeline)
		publisher := publish.New(s, g)

		o := orchestrator.New(cfg.Pipeline)
		o.Register("ingest", cfg.Pipeline.IngestInterval, func(ctx context.Context) (core.StageSummary, error) {
			n, err := ingester.IngestOnce(ctx)
			return core.StageSummary{Stage: "ingest", Processed: n}, err
		})
		o.Register("hydrate", cfg.Pipeline.HydrateInterval, hydrator.HydrateOnce)
		o.Register("digest", cfg.Pipeline.DigestInterval, digester.ProcessBatch)
		o.Register("hunt", cfg.Pipeline.HuntInterval, hunter.HuntOnce)
		o.Register("publish", cfg.Pipeline.PublishInterval, publisher.SyncOnce)

		if runOnce {
			return o.RunAll(ctx)
		}

		err = o.Run(ctx)
		if err == context.Canceled {
			logger.Info("pipeline stopped")
			return nil
		}
		return err
	},
}

func init() {
	hydrateCmd.Flags().BoolVar(&hydratePlainHTTP, "plain-http", false, "use a plain HTTP fetcher instead of the headless browser")
	runCmd.Flags().BoolVar(&hydratePlainHTTP, "plain-http", false, "use a plain HTTP fetcher instead of the headless browser")
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run each stage a single time and exit")
	publishCmd.Flags().BoolVar(&publishDump, "dump", false, "print the transport payload instead of writing to the graph")

	rootCmd.AddCommand(migrateCmd, ingestCmd, hydrateCmd, digestCmd, huntCmd, publishCmd, runCmd)
}
