// Command suggestd serves autocomplete suggestions over HTTP.
//
// Indexes are materialized lazily on first request from the configured data
// sources and kept fresh in the background. Flags:
//
//	-config path   custom config.toml location
//	-addr          override the configured listen address
//	-debug         force debug log level
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/CommerceExperts/smartsuggest/internal/logger"
	"github.com/CommerceExperts/smartsuggest/pkg/archive"
	"github.com/CommerceExperts/smartsuggest/pkg/config"
	"github.com/CommerceExperts/smartsuggest/pkg/datasource"
	"github.com/CommerceExperts/smartsuggest/pkg/datasource/elasticsearch"
	"github.com/CommerceExperts/smartsuggest/pkg/suggest"
	"github.com/CommerceExperts/smartsuggest/pkg/suggest/limiter"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	addr := flag.String("addr", "", "listen address, overrides config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	cfg, activePath, err := config.LoadConfigWithPriority(*configPath)
	if err != nil {
		charmlog.Fatalf("Failed to load config: %v", err)
	}

	level := logger.ParseLevel(cfg.Service.LogLevel)
	if *debug {
		level = charmlog.DebugLevel
	}
	charmlog.SetLevel(level)
	log := logger.New("suggestd")
	if activePath != "" {
		log.Info("Loaded configuration", "path", config.GetActiveConfigPath(activePath))
	} else {
		log.Info("Using builtin default configuration")
	}

	mgr, closers, err := buildManager(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize suggest manager: %v", err)
	}
	defer func() {
		mgr.Close()
		for _, c := range closers {
			c()
		}
	}()

	listenAddr := cfg.Service.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/suggest", suggestHandler(mgr, cfg.Service.MaxLimit, log))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Listening", "addr", listenAddr)
		errc <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigc:
		log.Info("Shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warnf("Shutdown incomplete: %v", err)
		}
	}
}

// buildManager wires data sources, archives and limiters from config into a
// suggest manager. The returned closers shut down provider connections that
// the manager does not own.
func buildManager(cfg *config.Config, log *charmlog.Logger) (*suggest.Manager, []func(), error) {
	var opts []suggest.Option
	var closers []func()

	if cfg.Source.File.Enabled {
		fp, err := datasource.NewFileProvider(cfg.Source.File.Dir, logger.New("source/file"))
		if err != nil {
			return nil, nil, fmt.Errorf("file source: %w", err)
		}
		closers = append(closers, func() { fp.Close() })
		opts = append(opts, suggest.WithDataProvider(fp))
	}
	if cfg.Source.Elasticsearch.Enabled {
		es := cfg.Source.Elasticsearch
		ep, err := elasticsearch.New(elasticsearch.Config{
			URLs:         es.URLs,
			Username:     es.Username,
			Password:     es.Password,
			CloudID:      es.CloudID,
			APIKey:       es.APIKey,
			IndexPattern: es.IndexPattern,
			QueryField:   es.QueryField,
			TimeField:    es.TimeField,
			MaxRecords:   es.MaxRecords,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("elasticsearch source: %w", err)
		}
		opts = append(opts, suggest.WithDataProvider(ep))
	}

	if cfg.Archive.Local.Enabled {
		lp, err := archive.NewLocalProvider(cfg.Archive.Local.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("local archive: %w", err)
		}
		opts = append(opts, suggest.WithArchiveProvider(lp))
	}
	if cfg.Archive.Redis.Enabled {
		rp, err := archive.NewRedisProvider(archive.RedisConfig{
			Addr:     cfg.Archive.Redis.Addr,
			Password: cfg.Archive.Redis.Password,
			DB:       cfg.Archive.Redis.DB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("redis archive: %w", err)
		}
		closers = append(closers, func() { rp.Close() })
		opts = append(opts, suggest.WithArchiveProvider(rp))
	}

	if l := buildLimiter(cfg.Limiter); l != nil {
		opts = append(opts, suggest.WithGroupLimiter(l))
		log.Debug("Group limiter enabled", "key", cfg.Limiter.GroupKey)
	}

	sc := cfg.Suggest
	if sc.BaseDir != "" {
		opts = append(opts, suggest.WithBaseDir(sc.BaseDir))
	}
	if sc.UpdateRateSeconds > 0 {
		opts = append(opts, suggest.WithUpdateRate(time.Duration(sc.UpdateRateSeconds)*time.Second))
	}
	if sc.IdleTimeoutSeconds > 0 {
		opts = append(opts, suggest.WithIdleTimeout(time.Duration(sc.IdleTimeoutSeconds)*time.Second))
	}
	if sc.UpdatePoolSize > 0 {
		opts = append(opts, suggest.WithUpdatePoolSize(sc.UpdatePoolSize))
	}
	if sc.PrefetchFactor > 0 {
		opts = append(opts, suggest.WithPrefetchFactor(sc.PrefetchFactor))
	}
	if sc.UseDataMerger {
		opts = append(opts, suggest.WithDataMerger())
	}
	if len(sc.PreloadIndexes) > 0 {
		opts = append(opts, suggest.WithPreloadIndexes(sc.PreloadIndexes...))
	}
	opts = append(opts, suggest.WithLogger(logger.New("suggest")))

	mgr, err := suggest.NewManager(opts...)
	if err != nil {
		return nil, nil, err
	}
	return mgr, closers, nil
}

// buildLimiter maps the limiter config onto a group limiter, nil when no
// group key is configured.
func buildLimiter(lc config.LimiterConfig) suggest.Limiter {
	if lc.GroupKey == "" {
		return nil
	}
	defaultLimit := lc.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	if lc.UseRelativeShares {
		shares := make([]limiter.GroupShare, 0, len(lc.Groups))
		for _, g := range lc.Groups {
			shares = append(shares, limiter.GroupShare{Group: g.Name, Value: g.Share})
		}
		return limiter.NewConfigurableShareLimiter(lc.GroupKey, shares, lc.DeduplicationOrder)
	}
	limits := make([]limiter.GroupLimit, 0, len(lc.Groups))
	for _, g := range lc.Groups {
		limits = append(limits, limiter.GroupLimit{Group: g.Name, Limit: g.Limit})
	}
	return &limiter.GroupedCutOffLimiter{
		GroupKey:           lc.GroupKey,
		DefaultLimit:       defaultLimit,
		Limits:             limits,
		DeduplicationOrder: lc.DeduplicationOrder,
	}
}

type suggestResponse struct {
	Index       string               `json:"index"`
	Term        string               `json:"term"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
}

// suggestHandler answers GET /suggest?index=...&q=...&limit=...&tags=a,b
func suggestHandler(mgr *suggest.Manager, maxLimit int, log *charmlog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		index := q.Get("index")
		term := q.Get("q")
		if index == "" || term == "" {
			http.Error(w, "index and q parameters are required", http.StatusBadRequest)
			return
		}

		limit := suggest.DefaultMaxResults
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		if maxLimit > 0 && limit > maxLimit {
			limit = maxLimit
		}

		var tags []string
		if raw := q.Get("tags"); raw != "" {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}

		sug, err := mgr.GetSuggester(index, false)
		if err != nil {
			log.Errorf("Failed to get suggester for %q: %v", index, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		results := sug.Suggest(term, limit, tags)
		if results == nil {
			results = []suggest.Suggestion{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(suggestResponse{
			Index:       index,
			Term:        term,
			Suggestions: results,
		}); err != nil {
			log.Debugf("Failed to write response: %v", err)
		}
	}
}
