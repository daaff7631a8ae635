package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"factweave/internal/config"
	"factweave/internal/logger"
	"factweave/internal/retrieval"
	"factweave/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg := config.Get()

		g, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = g.Close(context.Background()) }()

		client, err := newLLM()
		if err != nil {
			return err
		}

		engine := retrieval.New(client, g, cfg.Retrieval)
		srv := server.New(engine, g, cfg.Server)

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Answer one natural-language query from the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		cfg := config.Get()

		g, err := openGraph(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = g.Close(context.Background()) }()

		client, err := newLLM()
		if err != nil {
			return err
		}

		engine := retrieval.New(client, g, cfg.Retrieval)
		answer, err := engine.Answer(ctx, args[0])
		if err != nil {
			return err
		}

		if len(answer.Results) == 0 {
			fmt.Println("no matching facts")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answer); err != nil {
			return err
		}
		logger.Debug("query served", "results", len(answer.Results))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, queryCmd)
}
