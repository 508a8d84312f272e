package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/httpx"
)

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

type Handler struct {
	log     *slog.Logger
	service *application.Service
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/history", h.history)
	r.Post("/orders/{id}/separation", h.startSeparation)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/finish", h.finish)
	return r
}

type createOrderItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type createOrderReq struct {
	Items []createOrderItem `json:"items"`
}

type itemResp struct {
	ID        uuid.UUID   `json:"id"`
	ProductID int64       `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
	Subtotal  json.Number `json:"subtotal"`
}

type orderResp struct {
	ID        uuid.UUID     `json:"id"`
	UserID    uuid.UUID     `json:"userId"`
	Status    domain.Status `json:"status"`
	Total     json.Number   `json:"total"`
	Items     []itemResp    `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	// Warning is set when the order was stored but its follow-up message
	// could not be published yet.
	Warning string `json:"warning,omitempty"`
}

type historyResp struct {
	From    string    `json:"from,omitempty"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
	TraceID string    `json:"traceId,omitempty"`
	SpanID  string    `json:"spanId,omitempty"`
}

func toResp(o *domain.Order) orderResp {
	items := o.Items()
	out := orderResp{
		ID:        o.ID(),
		UserID:    o.UserID(),
		Status:    o.Status(),
		Total:     httpx.Number(o.Total()),
		Items:     make([]itemResp, 0, len(items)),
		CreatedAt: o.CreatedAt(),
		UpdatedAt: o.UpdatedAt(),
	}
	for _, it := range items {
		out.Items = append(out.Items, itemResp{
			ID:        it.ID(),
			ProductID: it.ProductID(),
			Quantity:  it.Quantity(),
			Price:     httpx.Number(it.Price()),
			Subtotal:  httpx.Number(it.Subtotal()),
		})
	}
	return out
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := userFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createOrderReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := application.CreateOrderCommand{UserID: userID}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, application.CreateOrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := h.service.CreateOrder(r.Context(), cmd)
	h.respondOrder(w, r, http.StatusCreated, o, err)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.GetOrder(r.Context(), id)
	h.respondOrder(w, r, http.StatusOK, o, err)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]historyResp, 0, len(entries))
	for _, e := range entries {
		hr := historyResp{To: e.To.String(), At: e.At, TraceID: e.TraceID, SpanID: e.SpanID}
		if e.From.IsValid() {
			hr.From = e.From.String()
		}
		out = append(out, hr)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) startSeparation(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.StartSeparation(r.Context(), id)
	h.respondOrder(w, r, http.StatusOK, o, err)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	userID, err := userFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Cancel(r.Context(), id, userID)
	h.respondOrder(w, r, http.StatusOK, o, err)
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request) {
	id, err := orderIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.service.Finish(r.Context(), id)
	h.respondOrder(w, r, http.StatusOK, o, err)
}

// respondOrder writes o with status. A committed order that could not be
// announced is still returned, with 503 and a warning.
func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, status int, o *domain.Order, err error) {
	if err != nil && !(o != nil && apperr.IsTransport(err)) {
		h.fail(w, r, err)
		return
	}
	resp := toResp(o)
	if err != nil {
		h.log.WarnContext(r.Context(), "order saved but not published", "order_id", o.ID(), "err", err)
		resp.Warning = err.Error()
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrItemsFrozen) {
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	httpx.WriteError(w, status, httpx.MessageFor(status, err))
}

func orderIDFrom(r *http.Request) (domain.OrderID, error) {
	id, err := domain.ParseOrderID(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Argument("id", "must be a UUID")
	}
	return id, nil
}

// userFrom returns uuid.Nil when the header is absent so the service can
// report the missing identity itself.
func userFrom(r *http.Request) (uuid.UUID, error) {
	v := r.Header.Get(UserHeader)
	if v == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, apperr.Argument(UserHeader, "must be a UUID")
	}
	return id, nil
}
