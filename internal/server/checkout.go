package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/discount"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	obscontext "github.com/smallbiznis/boxoffice/internal/observability/context"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
)

const maxCallbackBody = 64 << 10

type customerRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Email string `json:"email" binding:"required,email,max=254"`
	Phone string `json:"phone" binding:"max=40"`
}

type lineRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required"`
	OptionID     string `json:"option_id"`
	Quantity     int    `json:"quantity" binding:"required,min=1,max=1000"`
}

type checkoutRequest struct {
	Customer  customerRequest `json:"customer"`
	Items     []lineRequest   `json:"items" binding:"dive"`
	PromoCode string          `json:"promo_code" binding:"omitempty,promo_code"`
	Language  string          `json:"language"`
	Channel   string          `json:"channel" binding:"omitempty,oneof=retail b2b"`
}

type amountsResponse struct {
	Currency        string `json:"currency"`
	Total           int64  `json:"total"`
	Discount        int64  `json:"discount"`
	Final           int64  `json:"final"`
	DiscountKind    string `json:"discount_kind"`
	DiscountPercent *int   `json:"discount_percent,omitempty"`
}

type checkoutResponse struct {
	OrderID        string          `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	Status         string          `json:"status"`
	Amounts        amountsResponse `json:"amounts"`
	PaymentURL     string          `json:"payment_url,omitempty"`
	PaymentPending bool            `json:"payment_pending"`
}

func toLineRequests(items []lineRequest) []catalogdomain.LineRequest {
	lines := make([]catalogdomain.LineRequest, 0, len(items))
	for _, item := range items {
		lines = append(lines, catalogdomain.LineRequest{
			TicketTypeID:   strings.TrimSpace(item.TicketTypeID),
			TicketOptionID: strings.TrimSpace(item.OptionID),
			Quantity:       item.Quantity,
		})
	}
	return lines
}

func toAmounts(o orderdomain.Order) amountsResponse {
	return amountsResponse{
		Currency:        o.Currency,
		Total:           o.TotalAmount,
		Discount:        o.DiscountAmount,
		Final:           o.FinalAmount,
		DiscountKind:    o.DiscountKind,
		DiscountPercent: o.DiscountPercent,
	}
}

func (s *Server) ListCatalog(c *gin.Context) {
	types, err := s.catalogSvc.List(c.Request.Context(), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": types})
}

func (s *Server) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "customer", strings.ToLower(strings.TrimSpace(req.Customer.Email)))
	res, err := s.orderSvc.CreateOrder(ctx, orderdomain.CreateOrderRequest{
		Customer: orderdomain.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Lines:     toLineRequests(req.Items),
		PromoCode: req.PromoCode,
		Language:  req.Language,
		Channel:   orderdomain.Channel(strings.TrimSpace(req.Channel)),
		ClientIP:  c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := checkoutResponse{
		OrderID:        res.Order.ID.String(),
		OrderNumber:    res.Order.OrderNumber,
		Status:         string(res.Order.Status),
		Amounts:        toAmounts(res.Order),
		PaymentPending: res.PaymentPending,
	}
	if res.Order.PaymentURL != nil {
		resp.PaymentURL = *res.Order.PaymentURL
	}

	status := http.StatusCreated
	if res.PaymentPending {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

type promoCheckRequest struct {
	PromoCode string        `json:"promo_code" binding:"required,promo_code"`
	Email     string        `json:"email" binding:"omitempty,email"`
	Items     []lineRequest `json:"items" binding:"dive"`
}

type promoCheckResponse struct {
	Valid           bool   `json:"valid"`
	Reason          string `json:"reason,omitempty"`
	PromoCode       string `json:"promo_code"`
	Subtotal        int64  `json:"subtotal"`
	DiscountAmount  int64  `json:"discount_amount"`
	FinalAmount     int64  `json:"final_amount"`
	DiscountPercent *int   `json:"discount_percent,omitempty"`
}

// CheckPromoCode previews a code against a cart. Nothing is redeemed.
func (s *Server) CheckPromoCode(c *gin.Context) {
	var req promoCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	quote, err := s.promoSvc.Check(c.Request.Context(), promodomain.CheckRequest{
		Code:  req.PromoCode,
		Email: req.Email,
		Lines: toLineRequests(req.Items),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, promoCheckResponse{
		Valid:           !quote.Rejected(),
		Reason:          string(quote.Rejection),
		PromoCode:       discount.NormalizeCode(req.PromoCode),
		Subtotal:        quote.Subtotal,
		DiscountAmount:  quote.DiscountAmount,
		FinalAmount:     quote.FinalAmount,
		DiscountPercent: quote.Percent,
	})
}

// GatewayCallback receives the payment result. Anything the gateway could
// fix by retrying gets a non-2xx status; duplicates and anomalies are
// acknowledged.
func (s *Server) GatewayCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.verifier.Verify(body, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}
	cb, err := gateway.ParseCallback(body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "gateway", gateway.Provider)
	outcome, err := s.orderSvc.HandleGatewayCallback(ctx, orderdomain.CallbackRequest{
		Provider:       gateway.Provider,
		TransactionID:  cb.TransactionID,
		OrderReference: cb.OrderReference,
		Result:         orderdomain.CallbackResult(cb.Result),
		FailureReason:  cb.FailureReason,
		Amount:         cb.Amount,
		Payload:        body,
	})
	if err != nil && !(outcome == orderdomain.OutcomeAnomalous && errors.Is(err, orderdomain.ErrInvalidTransition)) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

func (s *Server) DownloadTickets(c *gin.Context) {
	doc, err := s.orderSvc.DownloadTickets(c.Request.Context(), c.Param("number"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

type cancelOrderRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// CancelOrder lets a customer drop an unpaid order. The email must match the
// order's; a mismatch answers like an unknown order.
func (s *Server) CancelOrder(c *gin.Context) {
	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), "customer", strings.ToLower(strings.TrimSpace(req.Email)))
	order, err := s.orderSvc.Cancel(ctx, orderdomain.CancelRequest{
		OrderNumber: c.Param("number"),
		Email:       req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_number": order.OrderNumber,
		"status":       order.Status,
	})
}
