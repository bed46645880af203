package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/orbitel/journey/internal/logging"
	httpAdapter "github.com/orbitel/journey/pkg/adapters/http"
	"github.com/orbitel/journey/pkg/adapters/process"
	redisAdapter "github.com/orbitel/journey/pkg/adapters/redis"
	"github.com/orbitel/journey/pkg/engine"
	"github.com/orbitel/journey/pkg/observability"
	"github.com/orbitel/journey/pkg/orchestrator"
	"github.com/orbitel/journey/pkg/persistence/middleware"
	"github.com/orbitel/journey/pkg/ports"
	"github.com/orbitel/journey/pkg/templates"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the journey engine HTTP server",
	Long: `Starts the engine in server mode: templates are loaded from the
templates directory, tenants spin up lazily on first request, and the
operations REST API plus Prometheus metrics are exposed over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("templates")
		port, _ := cmd.Flags().GetString("port")
		redisAddr, _ := cmd.Flags().GetString("redis")
		level, _ := cmd.Flags().GetString("log-level")
		keyHex, _ := cmd.Flags().GetString("snapshot-key")
		maskKeys, _ := cmd.Flags().GetStringSlice("mask-keys")
		subsystems, _ := cmd.Flags().GetStringToString("subsystems")

		logger := logging.New(logging.ParseLevel(level))

		loaded, err := templates.LoadDir(dir)
		if err != nil {
			fmt.Printf("Error loading templates: %v\n", err)
			os.Exit(1)
		}
		logger.Info("templates loaded", "count", len(loaded), "dir", dir)

		var store ports.SnapshotStore
		var locker ports.TenantLocker
		if redisAddr != "" {
			client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
			if err := client.Ping(cmd.Context()).Err(); err != nil {
				fmt.Printf("Error connecting to redis at %s: %v\n", redisAddr, err)
				os.Exit(1)
			}
			store = redisAdapter.NewStore(client)
			locker = redisAdapter.NewLocker(client, "journey:")
			logger.Info("snapshot persistence enabled", "redis", redisAddr)
		}

		if store != nil {
			var mws []middleware.Middleware
			if len(maskKeys) > 0 {
				mws = append(mws, middleware.NewPIIMiddleware(maskKeys))
			}
			if keyHex != "" {
				key, err := hex.DecodeString(keyHex)
				if err != nil || len(key) != 32 {
					fmt.Println("Error: --snapshot-key must be 64 hex characters (32 bytes)")
					os.Exit(1)
				}
				mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
				logger.Info("snapshot encryption enabled")
			}
			store = middleware.Chain(store, mws...)
		}

		runners := make(map[string]*process.Runner, len(subsystems))
		for name, path := range subsystems {
			actions, err := process.LoadActions(path)
			if err != nil {
				fmt.Printf("Error loading actions for subsystem %s: %v\n", name, err)
				os.Exit(1)
			}
			runners[name] = process.NewRunner(process.WithActions(actions))
			logger.Info("subsystem configured", "name", name, "actions", len(actions))
		}

		promReg := prometheus.NewRegistry()
		collector := observability.NewCollector(promReg)

		registry := engine.NewRegistry(func(tenantID string) *engine.Engine {
			opts := []engine.Option{
				engine.WithLogger(logger),
				engine.WithConfig(orchestrator.Config{AutoProgress: true}),
			}
			if store != nil {
				opts = append(opts, engine.WithSnapshotStore(store), engine.WithLocker(locker))
			}
			e := engine.New(tenantID, opts...)
			collector.Observe(e.Bus, e.Orchestrator)
			for name, runner := range runners {
				e.Subsystems.Register(runner.Subsystem(name))
			}
			for _, tpl := range loaded {
				if err := e.Orchestrator.LoadTemplate(tpl); err != nil {
					logger.Error("template rejected", "template_id", tpl.ID, "err", err)
				}
			}
			return e
		})

		handler := httpAdapter.NewHandler(registry, promReg, httpAdapter.WithLogger(logger))
		srv := &http.Server{
			Addr:    ":" + port,
			Handler: handler,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown incomplete", "err", err)
				_ = srv.Close()
			}
			if err := registry.Shutdown(ctx); err != nil {
				logger.Warn("engine shutdown incomplete", "err", err)
			}
			logger.Info("server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("redis", "", "Redis address for snapshot persistence (host:port); empty keeps state in memory")
	serveCmd.Flags().String("snapshot-key", "", "Hex-encoded 32-byte key; when set, snapshots are encrypted at rest")
	serveCmd.Flags().StringSlice("mask-keys", nil, "Context key patterns (regex) to mask before snapshots are persisted")
	serveCmd.Flags().StringToString("subsystems", nil, "Command-backed subsystems as name=actions.yaml pairs")
}
