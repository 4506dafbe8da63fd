package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/gymledger/internal/clock"
	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/entity"
	"github.com/smallbiznis/gymledger/internal/gateway"
	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"github.com/smallbiznis/gymledger/internal/member"
	"github.com/smallbiznis/gymledger/internal/notification"
	"github.com/smallbiznis/gymledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/gymledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/gymledger/internal/observability/tracing"
	"github.com/smallbiznis/gymledger/internal/payment"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/ratelimit"
	"github.com/smallbiznis/gymledger/internal/receipt"
	receiptdomain "github.com/smallbiznis/gymledger/internal/receipt/domain"
	"github.com/smallbiznis/gymledger/internal/reconciliation"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"github.com/smallbiznis/gymledger/internal/registration"
	registrationdomain "github.com/smallbiznis/gymledger/internal/registration/domain"
	"github.com/smallbiznis/gymledger/internal/routing"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
	"github.com/smallbiznis/gymledger/internal/setting"
	"github.com/smallbiznis/gymledger/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"github.com/smallbiznis/gymledger/internal/vat"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DomainModule wires every service the HTTP handlers and the CLI depend on.
var DomainModule = fx.Options(
	entity.Module,
	member.Module,
	subscription.Module,
	payment.Module,
	setting.Module,
	vat.Module,
	routing.Module,
	gateway.Module,
	notification.Module,
	reconciliation.Module,
	registration.Module,
	receipt.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	DomainModule,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	registrationSvc registrationdomain.Service
	routingSvc      routingdomain.Service
	vatSvc          vatdomain.Service
	reconSvc        reconciliationdomain.Service
	receiptSvc      receiptdomain.Service
	paymentRepo     paymentdomain.Repository
	subRepo         subscriptiondomain.Repository
	gateway         gatewaydomain.Gateway
	obsMetrics      *obsmetrics.Metrics
	signupLimiter   *ratelimit.RegistrationLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	Clock           clock.Clock
	RegistrationSvc registrationdomain.Service
	RoutingSvc      routingdomain.Service
	VatSvc          vatdomain.Service
	ReconSvc        reconciliationdomain.Service
	ReceiptSvc      receiptdomain.Service
	PaymentRepo     paymentdomain.Repository
	SubRepo         subscriptiondomain.Repository
	Gateway         gatewaydomain.Gateway
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
	SignupLimiter   *ratelimit.RegistrationLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		registrationSvc: p.RegistrationSvc,
		routingSvc:      p.RoutingSvc,
		vatSvc:          p.VatSvc,
		reconSvc:        p.ReconSvc,
		receiptSvc:      p.ReceiptSvc,
		paymentRepo:     p.PaymentRepo,
		subRepo:         p.SubRepo,
		gateway:         p.Gateway,
		obsMetrics:      p.ObsMetrics,
		signupLimiter:   p.SignupLimiter,
	}

	svc.RegisterAPIRoutes()
	svc.RegisterWebhookRoutes()
	svc.RegisterAdminRoutes()

	return svc
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/plans", s.ListPlans)
	api.POST("/registrations", s.RegistrationRateLimit(), s.Register)
	api.POST("/payments/confirm", s.RegistrationRateLimit(), s.ConfirmPayment)
}

func (s *Server) RegisterWebhookRoutes() {
	s.engine.POST("/api/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.AdminKeyRequired())
	admin.GET("/vat/positions", s.ListVatPositions)
	admin.POST("/routing/preview", s.PreviewRouting)
	admin.GET("/routing/decisions", s.ListRoutingDecisions)
	admin.GET("/payments", s.ListPayments)
	admin.GET("/payments/:id/receipt", s.DownloadReceipt)
	admin.GET("/activity", s.RecentActivity)
	admin.GET("/balance", s.GetBalance)
	admin.POST("/backfill", s.RunBackfill)
}
