package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/boxoffice/internal/audit"
	auditdomain "github.com/smallbiznis/boxoffice/internal/audit/domain"
	"github.com/smallbiznis/boxoffice/internal/authorization"
	"github.com/smallbiznis/boxoffice/internal/catalog"
	catalogdomain "github.com/smallbiznis/boxoffice/internal/catalog/domain"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/events"
	"github.com/smallbiznis/boxoffice/internal/gateway"
	"github.com/smallbiznis/boxoffice/internal/invitation"
	invitationdomain "github.com/smallbiznis/boxoffice/internal/invitation/domain"
	"github.com/smallbiznis/boxoffice/internal/notification"
	"github.com/smallbiznis/boxoffice/internal/observability"
	obslogger "github.com/smallbiznis/boxoffice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	obstracing "github.com/smallbiznis/boxoffice/internal/observability/tracing"
	"github.com/smallbiznis/boxoffice/internal/order"
	orderdomain "github.com/smallbiznis/boxoffice/internal/order/domain"
	"github.com/smallbiznis/boxoffice/internal/promocode"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/providers"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"github.com/smallbiznis/boxoffice/internal/ticketcode"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the HTTP API together with every domain module it serves.
var Module = fx.Module("http.server",
	catalog.Module,
	promocode.Module,
	ticketcode.Module,
	providers.Module,
	notification.Module,
	events.Module,
	gateway.Module,
	order.Module,
	invitation.Module,
	audit.Module,
	authorization.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log, obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	orderSvc      orderdomain.Service
	catalogSvc    catalogdomain.Service
	promoSvc      promodomain.Service
	invitationSvc invitationdomain.Service
	auditSvc      auditdomain.Service
	authzSvc      authorization.Service
	verifier      *gateway.Verifier
	limiter       *ratelimit.Limiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	OrderSvc      orderdomain.Service
	CatalogSvc    catalogdomain.Service
	PromoSvc      promodomain.Service
	InvitationSvc invitationdomain.Service
	AuditSvc      auditdomain.Service
	AuthzSvc      authorization.Service
	Verifier      *gateway.Verifier
	Limiter       *ratelimit.Limiter  `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	registerValidators()

	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		orderSvc:      p.OrderSvc,
		catalogSvc:    p.CatalogSvc,
		promoSvc:      p.PromoSvc,
		invitationSvc: p.InvitationSvc,
		auditSvc:      p.AuditSvc,
		authzSvc:      p.AuthzSvc,
		verifier:      p.Verifier,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}
	if s.verifier == nil {
		s.verifier = gateway.NewVerifier("")
	}
	if !s.verifier.Enabled() {
		s.log.Error("no gateway webhook secret; payment callbacks are refused")
	}

	s.registerPublicRoutes()
	s.registerAdminRoutes()
	s.registerFallback()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api")

	api.GET("/catalog", s.ListCatalog)
	api.POST("/checkout", s.RateLimit(ratelimit.EndpointCheckout), s.Checkout)
	api.POST("/promo-codes/check", s.RateLimit(ratelimit.EndpointCheckout), s.CheckPromoCode)
	api.POST("/gateway/callback", s.GatewayCallback)
	api.GET("/orders/:number/tickets.pdf", s.RateLimit(ratelimit.EndpointDownload), s.DownloadTickets)
	api.POST("/orders/:number/cancel", s.CancelOrder)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.OperatorRequired())

	// -------- Orders --------
	admin.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.ListOrders)
	admin.GET("/orders/:id", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.GetOrder)
	admin.POST("/orders/:id/refund", s.authorize(authorization.ObjectOrder, authorization.ActionOrderRefund), s.RefundOrder)
	admin.POST("/orders/:id/resend", s.authorize(authorization.ObjectOrder, authorization.ActionOrderResend), s.ResendTickets)
	admin.PATCH("/orders/:id/email", s.authorize(authorization.ObjectOrder, authorization.ActionOrderUpdateEmail), s.UpdateOrderEmail)
	admin.POST("/orders/:id/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.CancelOrderByOperator)

	// -------- Invitations --------
	admin.POST("/invitations", s.authorize(authorization.ObjectInvitation, authorization.ActionInvitationIssue), s.IssueInvitation)

	// -------- Tickets --------
	admin.POST("/tickets/redeem", s.authorize(authorization.ObjectTicket, authorization.ActionTicketRedeem), s.RedeemTicket)

	// -------- Reports --------
	admin.GET("/reports/revenue", s.authorize(authorization.ObjectReport, authorization.ActionReportRevenue), s.RevenueReport)

	// -------- Promo codes --------
	admin.GET("/promo-codes", s.authorize(authorization.ObjectPromoCode, authorization.ActionPromoCodeView), s.ListPromoCodes)
	admin.GET("/promo-codes/:id", s.authorize(authorization.ObjectPromoCode, authorization.ActionPromoCodeView), s.GetPromoCode)
	admin.POST("/promo-codes", s.authorize(authorization.ObjectPromoCode, authorization.ActionPromoCodeManage), s.CreatePromoCode)
	admin.PATCH("/promo-codes/:id", s.authorize(authorization.ObjectPromoCode, authorization.ActionPromoCodeManage), s.UpdatePromoCode)
	admin.POST("/promo-codes/:id/deactivate", s.authorize(authorization.ObjectPromoCode, authorization.ActionPromoCodeManage), s.DeactivatePromoCode)

	// -------- Catalog --------
	admin.GET("/catalog/ticket-types", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.ListTicketTypes)
	admin.POST("/catalog/ticket-types", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.CreateTicketType)
	admin.POST("/catalog/ticket-types/:id/options", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.AddTicketOption)
	admin.POST("/catalog/ticket-types/:id/deactivate", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogManage), s.DeactivateTicketType)

	// -------- Audit --------
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// recordAudit writes an operator action to the audit log. Failures are
// logged; the action itself already happened.
func (s *Server) recordAudit(c *gin.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	ctx := c.Request.Context()
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("target_id", entry.TargetID),
			zap.Error(err),
		)
	}
}
