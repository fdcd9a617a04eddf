package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	exdb "github.com/grainex/exchange-core/db"
	"github.com/grainex/exchange-core/internal/engine"
	"github.com/grainex/exchange-core/internal/quote"
)

type submitOfferRequest struct {
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

type submitBidRequest struct {
	Quantity        decimal.Decimal `json:"quantity"`
	MaxPricePerUnit decimal.Decimal `json:"max_price_per_unit"`
}

type orderResponse struct {
	OrderID   string          `json:"order_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining_quantity"`
	Price     decimal.Decimal `json:"price_per_unit"`
	Status    engine.Status   `json:"status"`
	RequestID string          `json:"request_id"`
}

type tradeResponse struct {
	ID         int64           `json:"id"`
	BuyerID    string          `json:"buyer_order_id"`
	SellerID   string          `json:"seller_order_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// zap's Fatal would os.Exit past the deferred Sync, dropping the one
	// line that explains the exit
	fatal := func(msg string, err error) {
		log.Error(msg, zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	// 1) DB pool + queries (optional: in-memory mode without DATABASE_URL)
	var queries *exdb.Queries
	pool, err := exdb.NewPool(ctx)
	if err != nil {
		log.Warn("running without persistence", zap.Error(err))
		pool = nil
	} else {
		defer pool.Close()
		if err := exdb.Migrate(ctx, pool); err != nil {
			fatal("migrate failed", err)
		}
		queries = exdb.New(pool)
	}

	// 2) engine
	eng := engine.NewEngine(1024, pool, queries, log)
	if err := eng.Reload(ctx); err != nil {
		fatal("reload failed", err)
	}
	go eng.Run(ctx)

	// 3) quote cache
	cache := quote.NewCache()
	go quote.StartRefresher(ctx, eng, cache, 2*time.Second, log)

	// 4) router
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(3 * time.Second))

	writeProblem := func(w http.ResponseWriter, r *http.Request, code int, title, detail string) {
		reqID := middleware.GetReqID(r.Context())
		w.Header().Set("Content-Type", "application/problem+json")
		w.Header().Set("X-Request-ID", reqID)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":      title,
			"status":     code,
			"detail":     detail,
			"instance":   r.URL.Path,
			"request_id": reqID,
		})
	}

	writeJSON := func(w http.ResponseWriter, r *http.Request, code int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}

	// POST /offers — submit a sell order
	r.Post("/offers", func(w http.ResponseWriter, r *http.Request) {
		var req submitOfferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		order, err := engine.NewSellOrder(uuid.NewString(), req.Quantity, req.PricePerUnit)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if err := eng.SubmitSell(r.Context(), order); err != nil {
			writeSubmitError(writeProblem, w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, orderResponse{
			OrderID:   order.ID,
			Quantity:  order.Quantity,
			Remaining: order.Remaining,
			Price:     order.Price,
			Status:    order.Status(),
			RequestID: middleware.GetReqID(r.Context()),
		})
	})

	// POST /bids — submit a buy order
	r.Post("/bids", func(w http.ResponseWriter, r *http.Request) {
		var req submitBidRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
			return
		}
		order, err := engine.NewBuyOrder(uuid.NewString(), req.Quantity, req.MaxPricePerUnit)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if err := eng.SubmitBuy(r.Context(), order); err != nil {
			writeSubmitError(writeProblem, w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, orderResponse{
			OrderID:   order.ID,
			Quantity:  order.Quantity,
			Remaining: order.Remaining,
			Price:     order.MaxPrice,
			Status:    order.Status(),
			RequestID: middleware.GetReqID(r.Context()),
		})
	})

	// POST /match — run one sweep over the current book
	r.Post("/match", func(w http.ResponseWriter, r *http.Request) {
		trades, err := eng.RunMatch(r.Context())
		if err != nil {
			if errors.Is(err, engine.ErrInvariantViolation) {
				writeProblem(w, r, http.StatusConflict, "invariant_violation", err.Error())
				return
			}
			writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"trades": toTradeResponses(trades),
		})
	})

	// GET /trades — full ledger history
	r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
		trades, err := eng.Trades(r.Context())
		if err != nil {
			writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"trades": toTradeResponses(trades),
		})
	})

	// GET /book — resting orders by priority
	r.Get("/book", func(w http.ResponseWriter, r *http.Request) {
		view, err := eng.Book(r.Context())
		if err != nil {
			writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
			return
		}
		bids := make([]orderResponse, len(view.Bids))
		for i, o := range view.Bids {
			bids[i] = orderResponse{OrderID: o.ID, Quantity: o.Quantity, Remaining: o.Remaining, Price: o.MaxPrice, Status: o.Status()}
		}
		asks := make([]orderResponse, len(view.Asks))
		for i, o := range view.Asks {
			asks[i] = orderResponse{OrderID: o.ID, Quantity: o.Quantity, Remaining: o.Remaining, Price: o.Price, Status: o.Status()}
		}
		writeJSON(w, r, http.StatusOK, map[string]any{"bids": bids, "asks": asks})
	})

	// GET /quote — last trade price and resting depth
	r.Get("/quote", func(w http.ResponseWriter, r *http.Request) {
		snap := cache.Get()
		writeJSON(w, r, http.StatusOK, map[string]any{
			"last_price":  snap.LastPrice,
			"has_traded":  snap.HasTraded,
			"trade_count": snap.TradeCount,
			"bid_depth":   snap.BidDepth,
			"ask_depth":   snap.AskDepth,
			"updated_at":  snap.UpdatedAt,
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		fatal("server stopped", err)
	}
}

type problemWriter func(w http.ResponseWriter, r *http.Request, code int, title, detail string)

func writeSubmitError(writeProblem problemWriter, w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, engine.ErrInvalidOrder) {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	writeProblem(w, r, http.StatusInternalServerError, "engine_error", err.Error())
}

func toTradeResponses(trades []engine.Trade) []tradeResponse {
	out := make([]tradeResponse, len(trades))
	for i, tr := range trades {
		out[i] = tradeResponse{
			ID:         tr.ID,
			BuyerID:    tr.BuyerID,
			SellerID:   tr.SellerID,
			Quantity:   tr.Quantity,
			Price:      tr.Price,
			ExecutedAt: tr.ExecutedAt,
		}
	}
	return out
}

// requestLogger is a small chi middleware logging each request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
