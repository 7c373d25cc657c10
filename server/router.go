package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/decred/slog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"x402-arena/server/ledger"
	"x402-arena/server/research"
	"x402-arena/server/store"
)

func Router(app *App, log slog.Logger) http.Handler {
	if log == nil {
		log = slog.Disabled
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "token": ledger.X402})
	})

	r.Post("/api/research", research.Handler(app.Researcher(), log))

	// Live game
	r.Get("/api/state", func(w http.ResponseWriter, r *http.Request) {
		s := app.State()
		if s == nil {
			http.Error(w, "no game yet", http.StatusNotFound)
			return
		}
		writeJSON(w, s)
	})
	r.Get("/api/moves", func(w http.ResponseWriter, r *http.Request) {
		moves := app.Moves()
		if n := atoiDef(r.URL.Query().Get("recent"), 0); n > 0 && n < len(moves) {
			moves = moves[len(moves)-n:]
		}
		writeJSON(w, map[string]any{"moves": moves})
	})
	r.Get("/api/games", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"games": app.Games()})
	})
	r.Get("/api/ratings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Ratings())
	})

	// Token ledger
	r.Route("/api/ledger", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			l := app.Ledger()
			writeJSON(w, map[string]any{"statistics": l.Statistics(), "snapshot": l.ExportState()})
		})
		r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
			l := app.Ledger()
			q := r.URL.Query()
			var txs []ledger.Transaction
			switch {
			case q.Get("player") != "":
				txs = l.PlayerTransactions(q.Get("player"))
			case q.Has("recent"):
				txs = l.RecentTransactions(atoiDef(q.Get("recent"), 0))
			default:
				txs = l.Transactions()
			}
			if txs == nil {
				txs = []ledger.Transaction{}
			}
			writeJSON(w, map[string]any{"transactions": txs})
		})
		r.Get("/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
			tx, ok := app.Ledger().Transaction(chi.URLParam(r, "id"))
			if !ok {
				http.Error(w, "transaction not found", http.StatusNotFound)
				return
			}
			writeJSON(w, tx)
		})
		r.Get("/balances/{player}", func(w http.ResponseWriter, r *http.Request) {
			b, ok := app.Ledger().BalanceDetails(chi.URLParam(r, "player"))
			if !ok {
				http.Error(w, "player not found", http.StatusNotFound)
				return
			}
			writeJSON(w, b)
		})
	})

	// Mock chain
	r.Route("/api/chain", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			c := app.Chain()
			writeJSON(w, map[string]any{"info": c.Info(), "blocks": c.Blocks()})
		})
		r.Get("/verify", func(w http.ResponseWriter, r *http.Request) {
			res := map[string]any{"valid": true}
			if err := app.Chain().Verify(); err != nil {
				res["valid"], res["error"] = false, err.Error()
			}
			writeJSON(w, res)
		})
		r.Get("/stored", func(w http.ResponseWriter, r *http.Request) {
			st := app.Store()
			if st == nil {
				http.Error(w, "no store configured", http.StatusNotFound)
				return
			}
			blocks, err := st.Blocks(r.Context())
			if err != nil {
				log.Errorf("stored blocks: %v", err)
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			type chainView struct {
				Blocks int    `json:"blocks"`
				Head   string `json:"head"`
				Valid  bool   `json:"valid"`
				Error  string `json:"error,omitempty"`
			}
			var out []chainView
			for _, c := range store.Chains(blocks) {
				v := chainView{Blocks: len(c), Head: c[len(c)-1].Hash, Valid: true}
				if err := ledger.VerifyBlocks(c); err != nil {
					v.Valid, v.Error = false, err.Error()
				}
				out = append(out, v)
			}
			writeJSON(w, map[string]any{"chains": out, "total_blocks": len(blocks)})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func requestLogger(log slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debugf("%s %s -> %d (%s) [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond),
				middleware.GetReqID(r.Context()))
		})
	}
}
