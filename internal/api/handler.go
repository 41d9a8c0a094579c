package api

import (
	"net/http"
	"time"

	"bot-core/internal/allocator"
	"bot-core/internal/bot"
	"bot-core/internal/events"
	"bot-core/internal/kyc"
	"bot-core/internal/ledger"
	"bot-core/internal/monitor"
	"bot-core/internal/wallet"
	"bot-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the platform services.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Ledger    *ledger.Ledger
	Wallets   *wallet.Service
	Bots      *bot.Manager
	Kyc       *kyc.Service
	Allocator *allocator.Allocator
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	TickInterval time.Duration
	Version      string
}

func NewServer(bus *events.Bus, database *db.Database, lgr *ledger.Ledger, wallets *wallet.Service, bots *bot.Manager, kycSvc *kyc.Service, alloc *allocator.Allocator, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware(20, 50))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Ledger:    lgr,
		Wallets:   wallets,
		Bots:      bots,
		Kyc:       kycSvc,
		Allocator: alloc,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			// Bot lifecycle
			protected.GET("/bots/templates", s.listTemplates)
			protected.GET("/bots", s.listBots)
			protected.GET("/bots/active", s.listActiveBots)
			protected.POST("/bots/launch", s.launchBot)
			protected.POST("/bots/:id/stop", s.stopBot)

			// Wallets & ledger
			protected.GET("/wallets", s.getWallets)
			protected.GET("/transactions", s.getTransactions)
			protected.POST("/wallets/deposit-address", s.generateDepositAddress)
			protected.POST("/wallets/deposit", s.settleDeposit)
			protected.POST("/wallets/withdraw", s.withdraw)

			// KYC
			protected.GET("/kyc/status", s.getKycStatus)
			protected.POST("/kyc/documents", s.submitKycDocument)
			protected.POST("/kyc/review", s.reviewKycDocument)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
