package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/cache"
	"github.com/Joseda-hg/taskdeck/internal/config"
	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/session"
	"github.com/Joseda-hg/taskdeck/internal/tui"
	"github.com/Joseda-hg/taskdeck/internal/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	configPathFlag := flag.String("config", "", "config file path (.json, .yaml or .yml)")
	dbPathFlag := flag.String("db", "", "sqlite db path")
	apiURLFlag := flag.String("api-url", "", "task API base URL")
	serveFlag := flag.Bool("serve", false, "also run the development API server")
	serveOnlyFlag := flag.Bool("serve-only", false, "run the development API server only")
	addrFlag := flag.String("addr", "", "development API listen address")
	metricsAddrFlag := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	ephemeralFlag := flag.Bool("ephemeral", false, "keep the login session in memory only")
	flag.Parse()

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadAndSave(cfgPath, func(cfg *config.Config) {
		if *dbPathFlag != "" {
			cfg.DBPath = *dbPathFlag
		}
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(filepath.Dir(cfgPath), "taskdeck.db")
		}
		if *apiURLFlag != "" {
			cfg.APIURL = *apiURLFlag
		}
		if *addrFlag != "" {
			cfg.ServeAddr = *addrFlag
		}
		if *metricsAddrFlag != "" {
			cfg.MetricsAddr = *metricsAddrFlag
		}
		if cfg.LogPath == "" {
			cfg.LogPath = filepath.Join(filepath.Dir(cfgPath), "taskdeck.log")
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	logger, closeLog, err := openLogger(cfg, *serveOnlyFlag)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	conn, err := openDB(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	if cfg.MetricsAddr != "" {
		go serve(logger, "metrics", cfg.MetricsAddr, metricsHandler)
	}

	if *serveFlag || *serveOnlyFlag {
		handler := web.NewServer(db.NewStore(conn), logger, web.WithMetrics(metricsHandler)).Handler()
		if *serveOnlyFlag {
			serve(logger, "api", cfg.ServeAddr, handler)
			return
		}
		go serve(logger, "api", cfg.ServeAddr, handler)
	}

	client, err := api.NewClient(cfg.APIURL, api.Options{
		Timeout: cfg.RequestTimeout.Duration,
		Logger:  logger,
		Metrics: api.NewMetrics(registry),
	})
	if err != nil {
		log.Fatal(err)
	}

	var kv session.KV = db.NewKV(conn)
	if *ephemeralFlag {
		kv = session.NewMemoryKV()
	}
	sessions := session.NewStore(kv)

	err = tui.Run(tui.Deps{
		Cache:         cache.New(client, sessions, logger),
		Sessions:      sessions,
		Auth:          client,
		Logger:        logger,
		NotifyTimeout: cfg.NotifyTimeout.Duration,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

// openLogger writes to stderr when only the server runs; otherwise the
// terminal belongs to the UI and logs go to the file.
func openLogger(cfg config.Config, serveOnly bool) (*logrus.Logger, func() error, error) {
	if serveOnly {
		return logging.New(os.Stderr, cfg.LogLevel), func() error { return nil }, nil
	}
	if err := config.EnsureDir(cfg.LogPath); err != nil {
		return nil, nil, err
	}
	return logging.OpenFile(cfg.LogPath, cfg.LogLevel)
}

func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := config.EnsureDir(path); err != nil {
			return nil, err
		}
	}
	return db.Open(path)
}

func serve(logger *logrus.Logger, name, addr string, handler http.Handler) {
	entry := logging.Service(logger, "taskdeck").WithFields(logrus.Fields{"server": name, "addr": addr})
	entry.Info("listening")
	if err := http.ListenAndServe(addr, handler); err != nil {
		entry.WithError(err).Error("server stopped")
	}
}
