package orders

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shopvibe/shopvibe-backend/api/responses"
	"github.com/shopvibe/shopvibe-backend/api/validators"
	internalorders "github.com/shopvibe/shopvibe-backend/internal/orders"
	"github.com/shopvibe/shopvibe-backend/pkg/enums"
	pkgerrors "github.com/shopvibe/shopvibe-backend/pkg/errors"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/pagination"
)

type createLineItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	CustomerName    string                  `json:"customerName" validate:"required"`
	CustomerEmail   string                  `json:"customerEmail" validate:"required,email"`
	PaymentMethod   string                  `json:"paymentMethod" validate:"required,oneof=card upi cod"`
	ShippingAddress json.RawMessage         `json:"shippingAddress"`
	Items           []createLineItemRequest `json:"items" validate:"required,min=1,dive"`

	ItemsTotal    string `json:"itemsTotal" validate:"required"`
	TaxTotal      string `json:"taxTotal"`
	ShippingTotal string `json:"shippingTotal"`
	GrandTotal    string `json:"grandTotal" validate:"required"`
}

type settleOrderRequest struct {
	Receipt json.RawMessage `json:"receipt" validate:"required"`
}

// Create persists a new order with frozen line-item snapshots and a fresh
// invoice number.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildCreateInput(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Create(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// Settle marks the order paid and deducts stock for every line item.
func Settle(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req settleOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Settle(r.Context(), internalorders.SettleInput{
			OrderID: orderID,
			Receipt: req.Receipt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Deliver marks a paid order delivered. Re-delivery is a no-op.
func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Deliver(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Cancel cancels an undelivered order and restores deducted stock.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Get returns a single order by its full id.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Lookup(r.Context(), orderID.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Lookup resolves an invoice number, order-id prefix, or full order id.
func Lookup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		view, err := svc.Lookup(r.Context(), token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// List returns one page of orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
		customerEmail := strings.TrimSpace(r.URL.Query().Get("customerEmail"))

		result, err := svc.List(r.Context(), internalorders.ListInput{
			Limit:         limit,
			Cursor:        cursor,
			CustomerEmail: customerEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func buildCreateInput(req createOrderRequest) (*internalorders.CreateInput, error) {
	items := make([]internalorders.CreateLineItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").WithDetails(map[string]any{"productId": item.ProductID})
		}
		items = append(items, internalorders.CreateLineItemInput{
			ProductID: productID,
			Qty:       item.Qty,
		})
	}

	itemsTotal, err := parseAmount("itemsTotal", req.ItemsTotal, true)
	if err != nil {
		return nil, err
	}
	taxTotal, err := parseAmount("taxTotal", req.TaxTotal, false)
	if err != nil {
		return nil, err
	}
	shippingTotal, err := parseAmount("shippingTotal", req.ShippingTotal, false)
	if err != nil {
		return nil, err
	}
	grandTotal, err := parseAmount("grandTotal", req.GrandTotal, true)
	if err != nil {
		return nil, err
	}

	return &internalorders.CreateInput{
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		PaymentMethod:   enums.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		Items:           items,
		ItemsTotal:      itemsTotal,
		TaxTotal:        taxTotal,
		ShippingTotal:   shippingTotal,
		GrandTotal:      grandTotal,
	}, nil
}

func parseAmount(field, raw string, required bool) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount is required").WithDetails(map[string]any{"field": field})
		}
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithDetails(map[string]any{"field": field})
	}
	if amount.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative").WithDetails(map[string]any{"field": field})
	}
	return amount, nil
}
