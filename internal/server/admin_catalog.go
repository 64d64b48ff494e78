package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/boxoffice/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	invitationdomain "github.com/smallbiznis/boxoffice/internal/invitation/domain"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
)

type issueInvitationRequest struct {
	Customer customerRequest `json:"customer"`
	Items    []lineRequest   `json:"items" binding:"dive"`
	Language string          `json:"language"`
	Note     string          `json:"note" binding:"max=1000"`
}

func (s *Server) IssueInvitation(c *gin.Context) {
	var req issueInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	operatorID, _ := operatorFromContext(c)
	order, err := s.invitationSvc.Issue(c.Request.Context(), invitationdomain.IssueRequest{
		Customer: orderdomain.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Lines:    toLineRequests(req.Items),
		Language: req.Language,
		Note:     req.Note,
		Operator: operatorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionInvitationIssued,
		TargetType: "order",
		TargetID:   order.ID.String(),
		Metadata: map[string]any{
			"order_number": order.OrderNumber,
			"tickets":      len(order.Items),
			"email":        order.CustomerEmail,
		},
	})

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

// -------- Promo codes --------

type createPromoCodeRequest struct {
	Code                 string     `json:"code" binding:"required,promo_code"`
	Description          string     `json:"description" binding:"max=500"`
	DiscountPercent      *int       `json:"discount_percent" binding:"omitempty,min=1,max=100"`
	DiscountAmount       *int64     `json:"discount_amount" binding:"omitempty,min=1"`
	UsageLimit           *int       `json:"usage_limit" binding:"omitempty,min=0"`
	ValidFrom            *time.Time `json:"valid_from"`
	ValidUntil           *time.Time `json:"valid_until"`
	MinOrderAmount       int64      `json:"min_order_amount" binding:"min=0"`
	AllowedTicketTypeIDs []string   `json:"allowed_ticket_type_ids"`
	OnePerEmail          bool       `json:"one_per_email"`
}

type updatePromoCodeRequest struct {
	Description          *string    `json:"description" binding:"omitempty,max=500"`
	UsageLimit           *int       `json:"usage_limit" binding:"omitempty,min=0"`
	ClearUsageLimit      bool       `json:"clear_usage_limit"`
	ValidFrom            *time.Time `json:"valid_from"`
	ValidUntil           *time.Time `json:"valid_until"`
	MinOrderAmount       *int64     `json:"min_order_amount" binding:"omitempty,min=0"`
	AllowedTicketTypeIDs *[]string  `json:"allowed_ticket_type_ids"`
	OnePerEmail          *bool      `json:"one_per_email"`
	IsActive             *bool      `json:"is_active"`
}

func parseTicketTypeIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil || id == 0 {
			return nil, newValidationError("allowed_ticket_type_ids", "invalid_ticket_type_id", "invalid ticket type id")
		}
		ids = append(ids, int64(id))
	}
	return ids, nil
}

func (s *Server) ListPromoCodes(c *gin.Context) {
	activeOnly, err := queryFlag("active", c.Query("active"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	codes, err := s.promoSvc.List(c.Request.Context(), activeOnly != nil && *activeOnly)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": codes})
}

func (s *Server) GetPromoCode(c *gin.Context) {
	code, err := s.promoSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": code})
}

func (s *Server) CreatePromoCode(c *gin.Context) {
	var req createPromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	allowed, err := parseTicketTypeIDs(req.AllowedTicketTypeIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	code, err := s.promoSvc.Create(c.Request.Context(), promodomain.CreateRequest{
		Code:                 req.Code,
		Description:          req.Description,
		DiscountPercent:      req.DiscountPercent,
		DiscountAmount:       req.DiscountAmount,
		UsageLimit:           req.UsageLimit,
		ValidFrom:            req.ValidFrom,
		ValidUntil:           req.ValidUntil,
		MinOrderAmount:       req.MinOrderAmount,
		AllowedTicketTypeIDs: allowed,
		OnePerEmail:          req.OnePerEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionPromoCreated,
		TargetType: "promo_code",
		TargetID:   code.ID.String(),
		Metadata:   map[string]any{"code": code.Code},
	})

	c.JSON(http.StatusCreated, gin.H{"data": code})
}

func (s *Server) UpdatePromoCode(c *gin.Context) {
	var req updatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	update := promodomain.UpdateRequest{
		ID:              c.Param("id"),
		Description:     req.Description,
		UsageLimit:      req.UsageLimit,
		ClearUsageLimit: req.ClearUsageLimit,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		MinOrderAmount:  req.MinOrderAmount,
		OnePerEmail:     req.OnePerEmail,
		IsActive:        req.IsActive,
	}
	if req.AllowedTicketTypeIDs != nil {
		allowed, err := parseTicketTypeIDs(*req.AllowedTicketTypeIDs)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		update.AllowedTicketTypeIDs = &allowed
	}

	code, err := s.promoSvc.Update(c.Request.Context(), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionPromoUpdated,
		TargetType: "promo_code",
		TargetID:   code.ID.String(),
		Metadata:   map[string]any{"code": code.Code},
	})

	c.JSON(http.StatusOK, gin.H{"data": code})
}

func (s *Server) DeactivatePromoCode(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.promoSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionPromoDeactivated,
		TargetType: "promo_code",
		TargetID:   id,
	})

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// -------- Catalog --------

type createTicketTypeRequest struct {
	Name         string     `json:"name" binding:"required,max=200"`
	Description  string     `json:"description" binding:"max=2000"`
	Price        int64      `json:"price" binding:"min=0"`
	SalesStartAt *time.Time `json:"sales_start_at"`
	SalesEndAt   *time.Time `json:"sales_end_at"`
}

type addTicketOptionRequest struct {
	Name          string `json:"name" binding:"required,max=200"`
	PriceModifier int64  `json:"price_modifier"`
}

func (s *Server) ListTicketTypes(c *gin.Context) {
	types, err := s.catalogSvc.List(c.Request.Context(), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": types})
}

func (s *Server) CreateTicketType(c *gin.Context) {
	var req createTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	tt, err := s.catalogSvc.CreateTicketType(c.Request.Context(), catalogdomain.CreateTicketTypeRequest{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		SalesStartAt: req.SalesStartAt,
		SalesEndAt:   req.SalesEndAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionTicketTypeCreated,
		TargetType: "ticket_type",
		TargetID:   tt.ID.String(),
		Metadata:   map[string]any{"slug": tt.Slug, "price": tt.Price},
	})

	c.JSON(http.StatusCreated, gin.H{"data": tt})
}

func (s *Server) AddTicketOption(c *gin.Context) {
	var req addTicketOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	opt, err := s.catalogSvc.AddOption(c.Request.Context(), catalogdomain.CreateOptionRequest{
		TicketTypeID:  c.Param("id"),
		Name:          req.Name,
		PriceModifier: req.PriceModifier,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAudit(c, auditdomain.Entry{
		Action:     auditdomain.ActionTicketOptionAdded,
		TargetType: "ticket_option",
		TargetID:   opt.ID.String(),
		Metadata: map[string]any{
			"ticket_type_id": opt.TicketTypeID.String(),
			"price_modifier": opt.PriceModifier,
		},
	})

	c.JSON(http.StatusCreated, gin.H{"data": opt})
}

func (s *Server) DeactivateTicketType(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.catalogSvc.SetTicketTypeActive(c.Request.Context(), id, false); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}
