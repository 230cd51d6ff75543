package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/ollachat/internal/api"
	"github.com/kalambet/ollachat/internal/ollama"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local chat HTTP API (foreground)",
	Long: `Run the local chat HTTP API on 127.0.0.1.

With --mcp the same session is also exposed as an MCP server over stdio,
so stdout is reserved for the MCP protocol and status goes to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServe(withMCP)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func runServe(withMCP bool) error {
	fmt.Fprintf(stderr, "ollachat version %s\n", version)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness and pick a model if none is configured.
	if _, err := ollama.EnsureReady(ctx, a.client, stderr); err != nil {
		return err
	}
	if _, err := a.svc.Session.Initialize(ctx); err != nil {
		return err
	}
	slog.Info("chat session ready", "model", a.svc.Session.Config().Model)

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(a.svc),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(stderr, "ollachat listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if withMCP {
		g.Go(func() error {
			stdioSrv := server.NewStdioServer(api.NewMCPServer(a.svc, version))
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown on signal or when either transport fails.
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
