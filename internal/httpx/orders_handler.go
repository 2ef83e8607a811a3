package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-retail-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-retail-fulfillment/internal/logx"
	"github.com/ariefcatur/go-retail-fulfillment/internal/orders"
	"github.com/ariefcatur/go-retail-fulfillment/internal/redisx"
)

// IdempotencyStore claims Idempotency-Key values for order creation.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (orderID string, reserved bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

// OrdersHandler serves the order lifecycle. Redis and Idempotency are optional; without them
// the status cache and idempotency keys are skipped.
type OrdersHandler struct {
	Service     *fulfillment.Service
	Redis       *redis.Client
	Idempotency IdempotencyStore
	Log         *zap.Logger
}

type itemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type createOrderReq struct {
	CustomerID      string              `json:"customer_id"`
	Items           []itemReq           `json:"items"`
	DeliveryAddress string              `json:"delivery_address"`
	DeliveryPhone   string              `json:"delivery_phone"`
	PaymentMethod   string              `json:"payment_method"`
	DeliveryMethod  string              `json:"delivery_method"`
	DeliveryFee     decimal.NullDecimal `json:"delivery_fee"`
	DownPayment     decimal.NullDecimal `json:"down_payment"`
	InterestRate    decimal.NullDecimal `json:"interest_rate"`
	EWalletType     string              `json:"e_wallet_type"`
	Governorate     string              `json:"governorate"`
	PickupLocation  string              `json:"pickup_location"`
	Notes           string              `json:"notes"`
}

type assignReq struct {
	StaffID string `json:"staff_id"`
}

type inspectionReq struct {
	Result          string `json:"result"`
	RejectionReason string `json:"rejection_reason"`
}

type itemResp struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Source      string `json:"product_source"`
}

type planResp struct {
	TotalAmount    string    `json:"total_amount"`
	DownPayment    string    `json:"down_payment"`
	MonthlyAmount  string    `json:"monthly_amount"`
	NumberOfMonths int       `json:"number_of_months"`
	InterestRate   string    `json:"interest_rate"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

type customerResp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type orderResp struct {
	ID               string        `json:"id"`
	OrderNumber      string        `json:"order_number"`
	CustomerID       string        `json:"customer_id"`
	VendorID         string        `json:"vendor_id"`
	DeliveryStaffID  string        `json:"delivery_staff_id,omitempty"`
	Status           string        `json:"status"`
	PaymentStatus    string        `json:"payment_status"`
	PaymentMethod    string        `json:"payment_method"`
	DeliveryMethod   string        `json:"delivery_method"`
	DeliveryAddress  string        `json:"delivery_address"`
	DeliveryPhone    string        `json:"delivery_phone"`
	TotalAmount      string        `json:"total_amount"`
	DeliveryFee      string        `json:"delivery_fee"`
	FinalAmount      string        `json:"final_amount"`
	DownPayment      *string       `json:"down_payment,omitempty"`
	RemainingAmount  *string       `json:"remaining_amount,omitempty"`
	InspectionResult string        `json:"inspection_result,omitempty"`
	RejectionReason  string        `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	DeliveredAt      *time.Time    `json:"delivered_at,omitempty"`
	Items            []itemResp    `json:"items"`
	Customer         *customerResp `json:"customer,omitempty"`
	InstallmentPlan  *planResp     `json:"installment_plan,omitempty"`
	Idempotent       bool          `json:"idempotent,omitempty"`
}

type statusResp struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/confirm", h.confirm)
	r.Post("/orders/{id}/assign", h.assign)
	r.Post("/orders/{id}/inspection", h.inspect)
	r.Post("/orders/{id}/cancel", h.cancel)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	ae := mapError(err)
	if ae.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, ae.HTTPStatus, ae)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return orders.InvalidInput("invalid json: %v", err)
	}
	return nil
}

func (h *OrdersHandler) log() *zap.Logger { return logx.OrNop(h.Log) }

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = fulfillment.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	// Reserve key dulu (SETNX), baru buat order; request kedua lihat placeholder
	idemKey := ""
	if k := r.Header.Get("Idempotency-Key"); k != "" && h.Idempotency != nil {
		orderID, reserved, err := h.Idempotency.Reserve(ctx, k)
		switch {
		case err != nil:
			h.log().Warn("idempotency reserve failed, creating without key", zap.Error(err))
		case reserved:
			idemKey = k
		case orderID == "":
			writeJSON(w, http.StatusConflict, &apiError{Code: CodeIdempotencyInProgress,
				Message: "a request with this Idempotency-Key is still in progress"})
			return
		default:
			o, err := h.Service.GetOrder(ctx, orderID)
			if err != nil {
				writeError(w, h.log(), err)
				return
			}
			resp := toOrderResp(o)
			resp.Idempotent = true
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	in := fulfillment.CreateOrderInput{
		CustomerID:      req.CustomerID,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		DeliveryMethod:  orders.DeliveryMethod(req.DeliveryMethod),
		DeliveryFee:     req.DeliveryFee,
		DownPayment:     req.DownPayment,
		InterestRate:    req.InterestRate,
		EWalletType:     req.EWalletType,
		Governorate:     req.Governorate,
		PickupLocation:  req.PickupLocation,
		Notes:           req.Notes,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, fulfillment.LineInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.Service.CreateOrder(ctx, in)
	if idemKey != "" {
		// request ctx bisa sudah habis; key tetap harus dibereskan
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer scancel()
		if err != nil {
			if rerr := h.Idempotency.Release(sctx, idemKey); rerr != nil {
				h.log().Warn("idempotency release", zap.Error(rerr))
			}
		} else if cerr := h.Idempotency.Complete(sctx, idemKey, o.ID); cerr != nil {
			h.log().Warn("idempotency complete", zap.String("order_id", o.ID), zap.Error(cerr))
		}
	}
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback store
	o, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, toStatusResp(o))
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Service.ConfirmOrder(ctx, id)
	})
}

func (h *OrdersHandler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Service.AssignDeliveryStaff(ctx, id, req.StaffID)
	})
}

func (h *OrdersHandler) inspect(w http.ResponseWriter, r *http.Request) {
	var req inspectionReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.transition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Service.UpdateOrderStatus(ctx, id, fulfillment.InspectionInput{
			Result:          orders.InspectionResult(req.Result),
			RejectionReason: req.RejectionReason,
		})
	})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id string) (orders.Order, error) {
		return h.Service.CancelOrder(ctx, id)
	})
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	ctx = fulfillment.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	o, err := fn(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(toStatusResp(o))
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil && !errors.Is(err, context.Canceled) {
		h.log().Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func toStatusResp(o orders.Order) statusResp {
	return statusResp{OrderID: o.ID, Status: string(o.Status), PaymentStatus: string(o.PaymentStatus), UpdatedAt: o.UpdatedAt}
}

func toOrderResp(o orders.Order) orderResp {
	resp := orderResp{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		CustomerID:       o.CustomerID,
		VendorID:         o.VendorID,
		DeliveryStaffID:  o.DeliveryStaffID,
		Status:           string(o.Status),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentMethod:    string(o.PaymentMethod),
		DeliveryMethod:   string(o.DeliveryMethod),
		DeliveryAddress:  o.DeliveryAddress,
		DeliveryPhone:    o.DeliveryPhone,
		TotalAmount:      o.TotalAmount.StringFixed(2),
		DeliveryFee:      o.DeliveryFee.StringFixed(2),
		FinalAmount:      o.FinalAmount.StringFixed(2),
		InspectionResult: string(o.InspectionResult),
		RejectionReason:  o.RejectionReason,
		CreatedAt:        o.CreatedAt,
		DeliveredAt:      o.DeliveredAt,
		Items:            make([]itemResp, 0, len(o.Items)),
	}
	if o.DownPayment.Valid {
		s := o.DownPayment.Decimal.StringFixed(2)
		resp.DownPayment = &s
	}
	if o.RemainingAmount.Valid {
		s := o.RemainingAmount.Decimal.StringFixed(2)
		resp.RemainingAmount = &s
	}
	for _, it := range o.Items {
		src := orders.SourceOwned
		if it.Source != nil {
			src = it.Source.Kind()
		}
		resp.Items = append(resp.Items, itemResp{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price.StringFixed(2),
			Source:      src,
		})
	}
	if o.Customer != nil {
		resp.Customer = &customerResp{ID: o.Customer.ID, Name: o.Customer.Name, Phone: o.Customer.Phone}
	}
	if p := o.InstallmentPlan; p != nil {
		resp.InstallmentPlan = &planResp{
			TotalAmount:    p.TotalAmount.StringFixed(2),
			DownPayment:    p.DownPayment.StringFixed(2),
			MonthlyAmount:  p.MonthlyAmount.StringFixed(2),
			NumberOfMonths: p.NumberOfMonths,
			InterestRate:   p.InterestRate.String(),
			StartDate:      p.StartDate,
			EndDate:        p.EndDate,
		}
	}
	return resp
}

// queryInt reads a non-negative integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, orders.InvalidInput("%s must be a non-negative integer", name)
	}
	return n, nil
}
