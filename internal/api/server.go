package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"hyperliquid-alpha-bot/config"
	"hyperliquid-alpha-bot/internal/analytics"
	"hyperliquid-alpha-bot/internal/auth"
	"hyperliquid-alpha-bot/internal/ledger"
	"hyperliquid-alpha-bot/internal/logging"
)

// StrategySource reports the running strategies.
type StrategySource interface {
	Statuses() map[string]map[string]interface{}
}

// BreakerSource exposes circuit breaker state.
type BreakerSource interface {
	Stats() map[string]interface{}
	ForceReset()
}

// RiskSource exposes risk counters.
type RiskSource interface {
	Stats() map[string]interface{}
}

// StatsSource computes fill analytics.
type StatsSource interface {
	FeeReport(ctx context.Context) (*analytics.FeeReport, error)
	DailyPnlSummary(ctx context.Context, days int) ([]analytics.DailyPnl, error)
}

// VaultSource exposes the depositor ledger.
type VaultSource interface {
	Distributions(ctx context.Context, userID int64, limit int) ([]ledger.Distribution, error)
	Reconcile(ctx context.Context) (*ledger.ReconcileReport, error)
	DistributeProfits(ctx context.Context, key string, totalProfit decimal.Decimal) (*ledger.DistributionResult, error)
}

// Server is the HTTP surface for dashboards and ops tooling. All
// trading control stays in Telegram; the admin endpoints here cover
// circuit reset and distributions only.
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	strategies StrategySource
	breaker    BreakerSource
	risk       RiskSource
	stats      StatsSource
	vault      VaultSource
	jwt        *auth.JWTManager
	logger     *logging.Logger
	httpServer *http.Server
	startedAt  time.Time
}

func NewServer(
	cfg config.ServerConfig,
	strategies StrategySource,
	breaker BreakerSource,
	risk RiskSource,
	stats StatsSource,
	vault VaultSource,
	logger *logging.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		config:     cfg,
		strategies: strategies,
		breaker:    breaker,
		risk:       risk,
		stats:      stats,
		vault:      vault,
		jwt:        auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour),
		logger:     logger.WithComponent("api"),
		startedAt:  time.Now(),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/stats", s.handleStats)
		api.GET("/strategies", s.handleStrategies)
		api.GET("/distributions", s.handleDistributions)
	}

	admin := s.router.Group("/api/admin")
	admin.Use(auth.Middleware(s.jwt), auth.RequireAdmin())
	{
		admin.POST("/circuit/reset", s.handleCircuitReset)
		admin.POST("/distribute", s.handleDistribute)
		admin.GET("/reconcile", s.handleReconcile)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	resp := gin.H{
		"risk":    s.risk.Stats(),
		"circuit": s.breaker.Stats(),
	}

	if s.stats != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()
		if report, err := s.stats.FeeReport(ctx); err == nil {
			resp["fees"] = report
		} else {
			s.logger.Warn("fee report failed", "error", err.Error())
		}
		if pnl, err := s.stats.DailyPnlSummary(ctx, 7); err == nil {
			resp["daily_pnl"] = pnl
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.strategies.Statuses()})
}

func (s *Server) handleDistributions(c *gin.Context) {
	if s.vault == nil {
		c.JSON(http.StatusOK, gin.H{"distributions": []ledger.Distribution{}})
		return
	}

	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	distributions, err := s.vault.Distributions(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"distributions": distributions})
}

func (s *Server) handleCircuitReset(c *gin.Context) {
	s.breaker.ForceReset()
	s.logger.Info("circuit breaker reset via API")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

type distributeRequest struct {
	Key         string  `json:"key" binding:"required"`
	TotalProfit float64 `json:"total_profit" binding:"required"`
}

func (s *Server) handleDistribute(c *gin.Context) {
	if s.vault == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vault disabled"})
		return
	}

	var req distributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.vault.DistributeProfits(c.Request.Context(), req.Key, decimal.NewFromFloat(req.TotalProfit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleReconcile(c *gin.Context) {
	if s.vault == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vault disabled"})
		return
	}

	report, err := s.vault.Reconcile(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// IssueAdminToken mints a token for ops use, typically printed at
// startup for the configured admin.
func (s *Server) IssueAdminToken(userID int64) (string, error) {
	return s.jwt.GenerateToken(auth.UserClaims{UserID: userID, Role: "admin"})
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	s.logger.Info("api server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
