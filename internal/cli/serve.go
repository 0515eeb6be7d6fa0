package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/graphctx/internal/ctxlog"
	"github.com/mesh-intelligence/graphctx/internal/httpapi"
	"github.com/mesh-intelligence/graphctx/internal/schemafile"
	"github.com/mesh-intelligence/graphctx/pkg/graph"
)

// shutdownGrace bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownGrace = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph over HTTP",
		Long: "Open the configured storage, register the schema file if one is\n" +
			"configured, and serve the HTTP API until SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	return cmd
}

func runServe(cmd *cobra.Command, flags *rootFlags, listen string) error {
	env, err := flags.loadEnvironment()
	if err != nil {
		return err
	}
	if listen != "" {
		env.cfg.ListenAddr = listen
	}

	logger := ctxlog.New(env.cfg.Log.Level, env.cfg.Log.Format, cmd.ErrOrStderr())
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	g, err := graph.Open(ctx, env.cfg, env.storageDir())
	if err != nil {
		return sysError(err)
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Error("close graph", "error", err)
		}
	}()

	if env.cfg.SchemaFile != "" {
		if err := applySchema(ctx, g, env.cfg.SchemaFile); err != nil {
			return userError(err)
		}
	}

	ln, err := net.Listen("tcp", env.cfg.ListenAddr)
	if err != nil {
		return sysError(fmt.Errorf("listen on %s: %w", env.cfg.ListenAddr, err))
	}

	api := httpapi.New(g, httpapi.Options{
		RequestTimeout: env.cfg.RequestTimeout,
		Logger:         logger,
		Version:        graph.Version,
	})
	srv := &http.Server{
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("graphd listening", "addr", ln.Addr().String(), "backend", env.cfg.Backend)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return sysError(fmt.Errorf("serve: %w", err))
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return sysError(fmt.Errorf("shutdown: %w", err))
	}
	logger.Info("stopped")
	return nil
}

// applySchema registers every type in the schema file.
func applySchema(ctx context.Context, g *graph.Graph, path string) error {
	doc, err := schemafile.Load(path)
	if err != nil {
		return err
	}
	sum, err := schemafile.Apply(ctx, g, doc)
	if err != nil {
		return fmt.Errorf("apply %s: %w", path, err)
	}
	ctxlog.FromContext(ctx).Info("schema applied", "file", path, "created", sum.Created, "existing", sum.Existing)
	return nil
}
