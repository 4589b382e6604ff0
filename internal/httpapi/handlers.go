// Package httpapi is the HTTP edge of the checkout service. It does
// decoding, authentication and status mapping only; every payment
// decision lives in internal/checkout.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gpcheckout.org/internal/auth"
	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/checkout"
	"gpcheckout.org/internal/ledger"
	"gpcheckout.org/internal/obs"
	"gpcheckout.org/internal/stream"
)

// ReadyProbe is the readiness check (pings the database when the ledger
// runs on Postgres).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps wires the API's collaborators.
type Deps struct {
	Checkout *checkout.Service
	Auth     *auth.Service
	Ledger   ledger.Store
	Cards    *cards.Store
	Events   *stream.Stream
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	checkout *checkout.Service
	auth     *auth.Service
	ledger   ledger.Store
	cards    *cards.Store
	events   *stream.Stream
	ready    ReadyProbe
	version  string
}

// New builds the route table.
func New(deps Deps) *API {
	a := &API{
		mux:      http.NewServeMux(),
		checkout: deps.Checkout,
		auth:     deps.Auth,
		ledger:   deps.Ledger,
		cards:    deps.Cards,
		events:   deps.Events,
		ready:    deps.Ready,
		version:  deps.Version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// payments
	a.mux.HandleFunc("/v1/payments", a.handlePayments)
	a.mux.HandleFunc("/v1/refunds", a.handleRefunds)
	a.mux.HandleFunc("/v1/transactions", a.handleTransactions)

	// hosted payment page
	a.mux.HandleFunc("/v1/hpp/token", a.handleHPPToken)
	a.mux.HandleFunc("/v1/hpp/response", a.handleHPPResponse)
	a.mux.HandleFunc("/v1/hpp/transactions", a.handleHPPTransactions)

	// stored cards
	a.mux.HandleFunc("/v1/cards", a.handleCardsCollection)
	a.mux.HandleFunc("/v1/cards/", a.handleCardResource)

	// local accounts
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/user", a.handleUser)
	a.mux.HandleFunc("/v1/user/transactions", a.handleUserTransactions)
	a.mux.HandleFunc("/v1/user/cards", a.handleUserCards)

	// live feed
	a.mux.HandleFunc("/v1/stream", a.handleStream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 20, 10)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gpcheckout",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "gpcheckout",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

// errorStatus maps the checkout/auth error taxonomy onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, checkout.ErrInvalidState),
		errors.Is(err, checkout.ErrNotSupported),
		errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
