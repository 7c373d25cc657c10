package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/decred/slog"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"x402-arena/server/llm"
	"x402-arena/server/store"
)

// Tries OPENAI_API_KEY_FILE / OPENROUTER_API_KEY_FILE, then ./secrets and
// /run/secrets, for whichever key is not already set.
func loadAPIKeysFromSecrets() {
	for _, key := range []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY"} {
		if os.Getenv(key) != "" {
			continue
		}
		var candidates []string
		if p := os.Getenv(key + "_FILE"); strings.TrimSpace(p) != "" {
			candidates = append(candidates, p)
		}
		name := strings.ToLower(key) + ".txt"
		candidates = append(candidates, "./secrets/"+name, "./"+name, "/run/secrets/"+strings.ToLower(key))
		for _, path := range candidates {
			if b, err := os.ReadFile(path); err == nil {
				if v := strings.TrimSpace(string(b)); v != "" {
					os.Setenv(key, v)
					break
				}
			}
		}
	}
}

type mode struct {
	play, series, serve, migrate, ping bool
}

func parseArgs(args []string) (mode, error) {
	var m mode
	for _, a := range args {
		switch a {
		case "--play":
			m.play = true
		case "--series":
			m.series = true
		case "--serve":
			m.serve = true
		case "--migrate":
			m.migrate = true
		case "--ping":
			m.ping = true
		default:
			return m, fmt.Errorf("unknown argument %q (want --play, --series, --serve, --migrate, --ping)", a)
		}
	}
	if !m.play && !m.series && !m.serve && !m.migrate && !m.ping {
		m.play = true
	}
	return m, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()
	loadAPIKeysFromSecrets()

	m, err := parseArgs(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logs, closeLog, err := setupLogging(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	debugState = cfg.Debug
	if cfg.NoColor {
		pterm.DisableColor()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchSignals(cancel, logs.Main)

	if err := run(ctx, cfg, m, logs); err != nil {
		logs.Main.Criticalf("%v", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, m mode, logs loggers) error {
	if m.migrate {
		if err := mustEnv("DATABASE_URL"); err != nil {
			return err
		}
		cfg.AutoMigrate = true
	}
	st, err := openStores(ctx, cfg, logs.Store)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	if m.migrate {
		logs.Main.Info("migrated")
		return nil
	}
	if m.ping {
		return pingModels(ctx, cfg, logs.Main)
	}

	pterm.DefaultHeader.WithFullWidth().Println("x402 Arena")
	if cfg.usesLLM() && os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("OPENROUTER_API_KEY") == "" {
		logs.Main.Warn("no OPENAI_API_KEY or OPENROUTER_API_KEY; LLM seats will play the heuristic")
	}
	logs.Main.Infof("deck seed base: %d", cfg.DeckSeed)

	app := NewApp(cfg, logs, st, m.play || m.series)
	playing := m.play || m.series
	if !playing {
		if err := app.Restore(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if m.serve {
		srv := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      Router(app, logs.HTTP),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 35 * time.Second,
		}
		g.Go(func() error {
			logs.HTTP.Infof("listening on http://localhost:%s (Ctrl+C to stop)", cfg.Port)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if playing {
		g.Go(func() error {
			games := 1
			if m.series {
				games = cfg.SeriesGames
			}
			if err := app.RunSeries(gctx, games); err != nil {
				return err
			}
			printSummary(app.Ratings())
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStores(ctx context.Context, cfg Config, log slog.Logger) (store.Store, error) {
	var stores store.Multi
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		if err := db.Ping(ctx); err != nil {
			log.Warnf("postgres ping failed (continuing without it): %v", err)
			db.Close()
		} else {
			stores = append(stores, db)
		}
	}
	if cfg.SQLitePath != "" {
		db, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		stores = append(stores, db)
	}
	switch len(stores) {
	case 0:
		log.Info("no store configured; snapshots stay in memory")
		return nil, nil
	case 1:
		return stores[0], nil
	default:
		return stores, nil
	}
}

func pingModels(ctx context.Context, cfg Config, log slog.Logger) error {
	var failed error
	for _, p := range cfg.Players {
		if p.Strategy != stratLLM {
			continue
		}
		sub(fmt.Sprintf("%s via %s", p.Meta.Model, llm.ProviderName(p.Meta.Model)))
		pctx, done := context.WithTimeout(ctx, cfg.LLMTimeout)
		text, err := llm.PingText(pctx, p.Meta.Model, "Reply with the single word OK.", "ping")
		done()
		if err != nil {
			log.Errorf("%s (%s): %v", p.Meta.Name, p.Meta.Model, err)
			failed = errors.Join(failed, err)
			continue
		}
		pterm.Success.Printfln("%s (%s): %s", p.Meta.Name, p.Meta.Model, truncate(strings.TrimSpace(text), 60))
	}
	return failed
}

func watchSignals(cancel context.CancelFunc, log slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info("stop requested, finishing the current action")
	cancel()
}
