package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/inventory/domain"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/apperr"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/restock", h.restock)
	return r
}

type createProductReq struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

type restockReq struct {
	Quantity int `json:"quantity"`
}

type productResp struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       json.Number `json:"price"`
	Stock       int         `json:"stock"`
}

func toResp(p *domain.Product) productResp {
	return productResp{
		ID:          p.ID(),
		Name:        p.Name(),
		Description: p.Description(),
		Price:       httpx.Number(p.Price()),
		Stock:       p.Stock(),
	}
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.CreateProduct(r.Context(), application.CreateProductCommand{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toResp(p))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResp(p))
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	id, err := productIDFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req restockReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResp(p))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	httpx.WriteError(w, status, httpx.MessageFor(status, err))
}

func productIDFrom(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Argument("id", "must be a positive integer")
	}
	return id, nil
}
