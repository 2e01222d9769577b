package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhima-Mochi/minishop-cart/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	apporder "github.com/Zhima-Mochi/minishop-cart/internal/application/order"
	domcart "github.com/Zhima-Mochi/minishop-cart/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-cart/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability"
	"github.com/Zhima-Mochi/minishop-cart/internal/observability/logctx"
)

type CartService interface {
	AddItems(ctx context.Context, in appcart.AddItemsInput) (*appcart.BulkResult, error)
	RemoveItems(ctx context.Context, in appcart.RemoveItemsInput) (*appcart.BulkResult, error)
	Cart(ctx context.Context, sessionID string) (domcart.Snapshot, error)
	QuantityOf(ctx context.Context, sessionID, productID string) (int, error)
	Clear(ctx context.Context, sessionID string) (int, error)
	Touch(ctx context.Context, sessionID string) error
}

type InventoryService interface {
	SetStock(ctx context.Context, productID string, qty int) error
	Available(ctx context.Context, productID string) (int, error)
	ReserveOne(ctx context.Context, productID string) (bool, error)
	ReleaseOne(ctx context.Context, productID string)
}

type OrderService interface {
	Checkout(ctx context.Context, sessionID string) (*apporder.CheckoutResult, error)
	GetOrder(ctx context.Context, id string) (*domorder.Order, error)
}

type Handler struct {
	cart      CartService
	inventory InventoryService
	orders    OrderService
	log       observability.Logger
	tel       observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"
	headerSessionID      = "X-Session-ID"
	cookieSessionID      = "session_id"
	sessionCookieMaxAge  = 24 * time.Hour
)

func NewHandler(cart CartService, inventory InventoryService, orders OrderService, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Handler{
		cart:      cart,
		inventory: inventory,
		orders:    orders,
		log:       tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tel:       tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	// Trace → ObservabilityMiddleware (request logger + metrics) → Access log → Handler
	r.Use(
		h.withRoute,
		h.withTrace,
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			func(r *http.Request) string { return r.Header.Get(headerTenantID) },
			h.tel,
		),
		h.withAccessLog,
	)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/cart", h.handleGetCart).Methods(http.MethodGet)
	r.HandleFunc("/cart/items/{product_id}", h.handleQuantity).Methods(http.MethodGet)
	r.HandleFunc("/cart/items/{product_id}/add", h.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/cart/items/{product_id}/remove", h.handleRemove).Methods(http.MethodPost)
	r.HandleFunc("/cart/clear", h.handleClear).Methods(http.MethodPost)
	r.HandleFunc("/cart/touch", h.handleTouch).Methods(http.MethodPost)

	r.HandleFunc("/checkout", h.handleCheckout).Methods(http.MethodPost)
	r.HandleFunc("/orders/{order_id}", h.handleGetOrder).Methods(http.MethodGet)

	r.HandleFunc("/inventory/{product_id}", h.handleSetStock).Methods(http.MethodPut)
	r.HandleFunc("/inventory/{product_id}", h.handleAvailable).Methods(http.MethodGet)
	r.HandleFunc("/inventory/{product_id}/reserve", h.handleReserve).Methods(http.MethodPost)
	r.HandleFunc("/inventory/{product_id}/release", h.handleRelease).Methods(http.MethodPost)

	return r
}

type cartResponse struct {
	SessionID string         `json:"session_id"`
	Items     map[string]int `json:"items"`
	Units     int            `json:"units"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(w, r)
	snap, err := h.cart.Cart(r.Context(), sid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResponse{SessionID: sid, Items: snap, Units: snap.Units()})
}

type quantityResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) handleQuantity(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["product_id"]
	qty, err := h.cart.QuantityOf(r.Context(), sessionID(w, r), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quantityResponse{ProductID: productID, Quantity: qty})
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, h.cart.AddItems)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	h.handleBulk(w, r, h.cart.RemoveItems)
}

func (h *Handler) handleBulk(
	w http.ResponseWriter,
	r *http.Request,
	apply func(context.Context, appcart.AddItemsInput) (*appcart.BulkResult, error),
) {
	qty, err := queryInt(r, "qty", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := apply(r.Context(), appcart.AddItemsInput{
		SessionID: sessionID(w, r),
		ProductID: mux.Vars(r)["product_id"],
		Quantity:  qty,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type clearResponse struct {
	Released int `json:"released"`
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	released, err := h.cart.Clear(r.Context(), sessionID(w, r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Released: released})
}

func (h *Handler) handleTouch(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Touch(r.Context(), sessionID(w, r)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutResponse struct {
	OrderID string          `json:"order_id"`
	Status  domorder.Status `json:"status"`
	Lines   []domorder.Line `json:"lines"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Checkout(r.Context(), sessionID(w, r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{OrderID: res.OrderID, Status: res.Status, Lines: res.Lines})
}

type orderResponse struct {
	OrderID       string          `json:"order_id"`
	SessionID     string          `json:"session_id"`
	Status        domorder.Status `json:"status"`
	Lines         []domorder.Line `json:"lines"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["order_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{
		OrderID:       o.ID,
		SessionID:     o.SessionID,
		Status:        o.Status,
		Lines:         o.Lines,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	})
}

type stockResponse struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["product_id"]
	if !r.URL.Query().Has("qty") {
		writeError(w, http.StatusBadRequest, errors.New("qty is required"))
		return
	}
	qty, err := queryInt(r, "qty", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.inventory.SetStock(r.Context(), productID, qty); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ProductID: productID, Available: qty})
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["product_id"]
	available, err := h.inventory.Available(r.Context(), productID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse{ProductID: productID, Available: available})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ok, err := h.inventory.ReserveOne(r.Context(), mux.Vars(r)["product_id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, errors.New("out of stock"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.inventory.ReleaseOne(r.Context(), mux.Vars(r)["product_id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// sessionID resolves the shopper's session: header first, then cookie, otherwise a fresh id set as a cookie.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if sid := r.Header.Get(headerSessionID); sid != "" {
		return sid
	}
	if c, err := r.Cookie(cookieSessionID); err == nil && c.Value != "" {
		return c.Value
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieSessionID,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(sessionCookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(headerSessionID, sid)
	return sid
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

// withRoute stores the matched mux path template so metrics and logs use low-cardinality labels.
func (h *Handler) withRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		next.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop-cart.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		template := routeFromContext(parentCtx)
		if template == "unknown" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			r.Method+" "+template,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, application.ErrValidation):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, dominv.ErrInsufficientStock),
		errors.Is(err, domorder.ErrEmptyCart),
		errors.Is(err, domorder.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domorder.ErrNotFound),
		errors.Is(err, dominv.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
