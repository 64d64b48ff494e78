package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/boxoffice/internal/audit/domain"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
)

type listOrdersQuery struct {
	PageToken    string `form:"page_token"`
	PageSize     int    `form:"page_size"`
	Status       string `form:"status"`
	Channel      string `form:"channel"`
	Email        string `form:"email"`
	IsInvitation string `form:"is_invitation"`
	CreatedFrom  string `form:"created_from"`
	CreatedTo    string `form:"created_to"`
}

func (s *Server) ListOrders(c *gin.Context) {
	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isInvitation, err := queryFlag("is_invitation", query.IsInvitation)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	createdFrom, createdTo, err := queryWindow("created_from", query.CreatedFrom, "created_to", query.CreatedTo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.orderSvc.List(c.Request.Context(), orderdomain.ListRequest{
		Filter: orderdomain.ListFilter{
			Status:       orderdomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
			Channel:      orderdomain.Channel(strings.ToLower(strings.TrimSpace(query.Channel))),
			Email:        strings.ToLower(strings.TrimSpace(query.Email)),
			IsInvitation: isInvitation,
			CreatedFrom:  createdFrom,
			CreatedTo:    createdTo,
		},
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Orders, "page_info": resp.PageInfo})
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.orderSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type refundOrderRequest struct {
	Reason          string `json:"reason" binding:"required,max=500"`
	RefundReference string `json:"refund_reference" binding:"max=200"`
	Confirm         bool   `json:"confirm"`
}

func (s *Server) RefundOrder(c *gin.Context) {
	var req refundOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	if !req.Confirm {
		AbortWithError(c, ErrConfirmRequired)
		return
	}

	operatorID, _ := operatorFromContext(c)
	order, err := s.orderSvc.Refund(c.Request.Context(), orderdomain.RefundRequest{
		OrderID:         c.Param("id"),
		Reason:          req.Reason,
		Operator:        operatorID,
		RefundReference: req.RefundReference,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionOrderRefunded,
		TargetType: "order",
		TargetID:   order.ID.String(),
		Metadata: map[string]any{
			"order_number":     order.OrderNumber,
			"reason":           req.Reason,
			"refund_reference": req.RefundReference,
			"amount":           order.FinalAmount,
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": order})
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

func (s *Server) ResendTickets(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	if !req.Confirm {
		AbortWithError(c, ErrConfirmRequired)
		return
	}

	id := c.Param("id")
	if err := s.orderSvc.ResendTickets(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionOrderResent,
		TargetType: "order",
		TargetID:   strings.TrimSpace(id),
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type updateEmailRequest struct {
	Email string `json:"email" binding:"required,email,max=254"`
}

func (s *Server) UpdateOrderEmail(c *gin.Context) {
	var req updateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	before, err := s.orderSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	order, err := s.orderSvc.UpdateEmail(c.Request.Context(), orderdomain.UpdateEmailRequest{
		OrderID: c.Param("id"),
		Email:   req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionOrderEmailUpdated,
		TargetType: "order",
		TargetID:   order.ID.String(),
		Metadata: map[string]any{
			"order_number":   order.OrderNumber,
			"previous_email": before.CustomerEmail,
			"email":          order.CustomerEmail,
		},
	})

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) CancelOrderByOperator(c *gin.Context) {
	order, err := s.orderSvc.CancelByOperator(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionOrderCancelled,
		TargetType: "order",
		TargetID:   order.ID.String(),
		Metadata:   map[string]any{"order_number": order.OrderNumber},
	})

	c.JSON(http.StatusOK, gin.H{"data": order})
}

type revenueQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// RevenueReport sums paid orders. Invitations never count.
func (s *Server) RevenueReport(c *gin.Context) {
	var query revenueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	from, to, err := queryWindow("from", query.From, "to", query.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.orderSvc.RevenueSummary(c.Request.Context(), from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summary})
}

type redeemTicketRequest struct {
	TicketCode string `json:"ticket_code" binding:"required,max=64"`
}

// RedeemTicket marks a ticket as scanned at the gate.
func (s *Server) RedeemTicket(c *gin.Context) {
	var req redeemTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	item, err := s.orderSvc.RedeemTicket(c.Request.Context(), req.TicketCode)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionTicketRedeemed,
		TargetType: "ticket",
		TargetID:   item.ID.String(),
		Metadata:   map[string]any{"order_id": item.OrderID.String()},
	})

	c.JSON(http.StatusOK, gin.H{"data": item})
}
