package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"lojapdv/backend/internal/domain"
	"lojapdv/backend/internal/metrics"
	"lojapdv/backend/internal/service"
	"lojapdv/backend/internal/session"
)

type Options struct {
	AllowedOrigin string
	StoreName     string
	Metrics       *metrics.Metrics
	Logger        logrus.FieldLogger
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	metrics       *metrics.Metrics
	log           logrus.FieldLogger
	allowedOrigin string
	storeName     string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.StoreName == "" {
		opts.StoreName = "Loja PDV"
	}
	return &API{
		service:       svc,
		auth:          auth,
		metrics:       opts.Metrics,
		log:           opts.Logger.WithField("component", "http"),
		allowedOrigin: opts.AllowedOrigin,
		storeName:     opts.StoreName,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout))

	mux.HandleFunc("/api/v1/session", a.requireAuth(a.handleSession))
	mux.HandleFunc("/api/v1/session/cart", a.requireAuth(a.handleCart))
	mux.HandleFunc("/api/v1/session/cart/lines", a.requireAuth(a.handleCartLines))
	mux.HandleFunc("/api/v1/session/cart/lines/{productID}", a.requireAuth(a.handleCartLine))
	mux.HandleFunc("/api/v1/session/discount", a.requireAuth(a.handleDiscount))
	mux.HandleFunc("/api/v1/session/customer", a.requireAuth(a.handleSessionCustomer))
	mux.HandleFunc("/api/v1/session/checkout", a.requireAuth(a.handleCheckout))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleSale))
	mux.HandleFunc("/api/v1/sales/{id}/returnable", a.requireAuth(a.handleReturnable))
	mux.HandleFunc("/api/v1/sales/{id}/receipt", a.requireAuth(a.handleReceipt))
	mux.HandleFunc("/api/v1/returns", a.requireAuth(a.handleReturns, domain.RoleAdmin))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/low-stock", a.requireAuth(a.handleLowStock))
	mux.HandleFunc("/api/v1/products/{id}", a.requireAuth(a.handleProduct))

	mux.HandleFunc("/api/v1/customers", a.requireAuth(a.handleCustomers))
	mux.HandleFunc("/api/v1/customers/{id}", a.requireAuth(a.handleCustomer))
	mux.HandleFunc("/api/v1/customers/{id}/sales", a.requireAuth(a.handleCustomerSales))

	mux.HandleFunc("/api/v1/reports/sales", a.requireAuth(a.handleSalesReport, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/users/password", a.requireAuth(a.handlePassword))

	return a.metrics.InstrumentHandler(a.withMiddleware(mux))
}

// sessionHandler serves a request on behalf of an authenticated actor's
// checkout session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (a *API) requireAuth(next sessionHandler, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		claims, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(claims.Actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		sess, err := a.service.Session(claims.SessionID, claims.Actor.Username)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("session expired, log in again"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), claims.Actor)), sess)
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"at":       time.Now().UTC().Format(time.RFC3339),
		"sessions": a.service.Sessions().Len(),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, err := a.auth.Authenticate(r.Context(), req)
	if err != nil {
		a.log.WithField("username", req.Username).Warn("login rejected")
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	sess := a.service.OpenSession(actor)
	token, expiresAt, err := a.auth.IssueToken(actor, sess.ID)
	if err != nil {
		a.service.CloseSession(sess.ID)
		a.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.LoginResponse{
		AccessToken: token,
		Role:        actor.Role,
		SessionID:   sess.ID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.service.CloseSession(sess.ID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": a.service.Snapshot(sess)})
}

// handleCart cancels the sale in progress.
func (a *API) handleCart(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": a.service.CancelSale(sess)})
}

type cartLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (a *API) handleCartLines(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req cartLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := a.service.AddToCart(r.Context(), sess, req.ProductID, req.Quantity)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": snap})
}

func (a *API) handleCartLine(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	productID := strings.TrimSpace(r.PathValue("productID"))

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		snap, err := a.service.UpdateCartLine(r.Context(), sess, productID, req.Quantity)
		if err != nil {
			a.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": snap})
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, map[string]any{"session": a.service.RemoveCartLine(sess, productID)})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDiscount(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.Discount
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := a.service.SetDiscount(sess, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": snap})
}

func (a *API) handleSessionCustomer(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPut {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := a.service.SetCustomer(r.Context(), sess, req.CustomerID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": snap})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CheckoutSession(r.Context(), sess, req)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(startedAt).String(),
		}).Info("request served")
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. An empty value
// yields the zero time.
func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, domain.InvalidInput("invalid time " + raw)
	}
	return t, nil
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound, domain.KindSaleLineNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindExceedsSoldQuantity, domain.KindConflict, domain.KindProductInUse:
		return http.StatusConflict
	case domain.KindInsufficientPayment, domain.KindEmptyCart:
		return http.StatusUnprocessableEntity
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindTransactionFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type errorResponse struct {
	Error     string           `json:"error"`
	Kind      domain.ErrorKind `json:"kind,omitempty"`
	ProductID string           `json:"product_id,omitempty"`
	SaleID    string           `json:"sale_id,omitempty"`
	Available *int             `json:"available,omitempty"`
	Shortfall *decimal.Decimal `json:"shortfall,omitempty"`
}

// fail writes err as a structured error response. Errors without a domain
// kind are treated as internal failures.
func (a *API) fail(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		a.log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	status := statusFor(de.Kind)
	resp := errorResponse{Error: de.Error(), Kind: de.Kind, ProductID: de.ProductID, SaleID: de.SaleID}
	if status >= 500 {
		a.log.WithError(err).WithField("kind", de.Kind).Error("internal error")
		resp = errorResponse{Error: "internal server error", Kind: de.Kind}
	}
	switch de.Kind {
	case domain.KindInsufficientStock, domain.KindExceedsSoldQuantity:
		available := de.Available
		resp.Available = &available
	case domain.KindInsufficientPayment:
		shortfall := de.Shortfall.Round(2)
		resp.Shortfall = &shortfall
	}
	writeJSON(w, status, resp)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry internal details.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
