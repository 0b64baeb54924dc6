// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"ican-workers/internal/allocation"
	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"
	"ican-workers/internal/membership"
	"ican-workers/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// UserHeader carries the authenticated caller id set by the gateway.
const UserHeader = "X-User-ID"

type Governance interface {
	SubmitApplication(ctx context.Context, groupID, applicantID, text string) (*models.MembershipApplication, error)
	GetApplication(ctx context.Context, applicationID string) (*models.MembershipApplication, error)
	ListApplications(ctx context.Context, groupID string, status models.ApplicationStatus) ([]models.MembershipApplication, error)
	CastVote(ctx context.Context, applicationID, voterID, choice string) (*membership.VoteResult, error)
	GetTally(ctx context.Context, applicationID string) (*models.Tally, error)
	AdminApprove(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error)
	AdminReject(ctx context.Context, applicationID, adminID string) (*models.MembershipApplication, error)
}

type Allocations interface {
	CheckAndReserve(ctx context.Context, investorID, businessID, pitchID string, proposed decimal.Decimal) (*allocation.Decision, error)
	Summary(ctx context.Context, investorID, businessID, pitchID string) (*models.CapDetails, error)
	GetAllocation(ctx context.Context, allocationID string) (*models.AllocationRecord, error)
}

type RateLocks interface {
	LockRate(ctx context.Context, fromCurrency, toCurrency, txID string, txType models.TxType) (*models.ExchangeRateLock, error)
	GetLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error)
	ConsumeLock(ctx context.Context, lockID string) (*models.ExchangeRateLock, error)
	CalculateConversion(icanAmount, lockedRate decimal.Decimal, countryCode string, txType models.TxType) (*models.ConversionBreakdown, error)
}

type AuditTrail interface {
	Trail(ctx context.Context, resourceID string, size int) ([]models.AuditEntry, error)
}

// Check reports whether a dependency is ready to serve.
type Check func(ctx context.Context) error

type Options struct {
	Governance   Governance
	Allocations  Allocations
	RateLocks    RateLocks
	Audit        AuditTrail
	Checks       map[string]Check
	APIEnabled   bool
	RateLimitRPS float64
	RateBurst    int
	Logger       logger.Logger
}

type Server struct {
	router      *gin.Engine
	governance  Governance
	allocations Allocations
	rateLocks   RateLocks
	audit       AuditTrail
	checks      map[string]Check
	limiter     *RateLimiter
	logger      logger.Logger
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:      router,
		governance:  opts.Governance,
		allocations: opts.Allocations,
		rateLocks:   opts.RateLocks,
		audit:       opts.Audit,
		checks:      opts.Checks,
		logger:      logger.Component(opts.Logger, "http-api"),
	}
	router.Use(s.requestMetrics())

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !opts.APIEnabled {
		return s
	}

	v1 := router.Group("/api/v1")
	if opts.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateBurst, opts.Logger)
		v1.Use(s.limiter.Middleware())
	}
	v1.Use(requireCaller())
	{
		if s.governance != nil {
			v1.POST("/applications", s.handleSubmitApplication)
			v1.GET("/applications/:id", s.handleGetApplication)
			v1.GET("/applications/:id/tally", s.handleGetTally)
			v1.POST("/applications/:id/votes", s.handleCastVote)
			v1.POST("/applications/:id/approve", s.handleAdminDecision(true))
			v1.POST("/applications/:id/reject", s.handleAdminDecision(false))
			v1.GET("/groups/:groupId/applications", s.handleListApplications)
		}
		if s.allocations != nil {
			v1.POST("/allocations", s.handleReserve)
			v1.GET("/allocations/:id", s.handleGetAllocation)
			v1.GET("/pitches/:pitchId/headroom", s.handleHeadroom)
		}
		if s.rateLocks != nil {
			v1.POST("/rate-locks", s.handleLockRate)
			v1.GET("/rate-locks/:id", s.handleGetLock)
			v1.POST("/rate-locks/:id/consume", s.handleConsumeLock)
			v1.POST("/conversions", s.handleConversion)
		}
		if s.audit != nil {
			v1.GET("/audit/:resourceId", s.handleAuditTrail)
		}
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Limiter returns the API rate limiter, or nil when rate limiting is off.
func (s *Server) Limiter() *RateLimiter { return s.limiter }

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(UserHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "UNAUTHENTICATED",
				"message": UserHeader + " header is required",
			}})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

// writeError renders err with the status of its code. Unknown errors become 500.
func (s *Server) writeError(c *gin.Context, err error) {
	stdErr := apperrors.AsStandardError(err)
	status := apperrors.HTTPStatus(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"code":  stdErr.Code,
			"error": err.Error(),
		})
	}
	c.JSON(status, gin.H{"error": stdErr})
}
