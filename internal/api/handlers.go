// internal/api/handlers.go
package api

import (
	"net/http"
	"strconv"

	apperrors "ican-workers/internal/common/errors"
	"ican-workers/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// bind decodes the JSON body into req and writes a validation error on failure.
func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

// ====================
// Governance
// ====================

type submitApplicationRequest struct {
	GroupID         string `json:"groupId" binding:"required"`
	ApplicationText string `json:"applicationText"`
}

func (s *Server) handleSubmitApplication(c *gin.Context) {
	var req submitApplicationRequest
	if !s.bind(c, &req) {
		return
	}
	app, err := s.governance.SubmitApplication(c.Request.Context(), req.GroupID, c.GetHeader(UserHeader), req.ApplicationText)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

func (s *Server) handleGetApplication(c *gin.Context) {
	app, err := s.governance.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (s *Server) handleListApplications(c *gin.Context) {
	status := models.ApplicationStatus(c.Query("status"))
	apps, err := s.governance.ListApplications(c.Request.Context(), c.Param("groupId"), status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applications": apps, "count": len(apps)})
}

func (s *Server) handleGetTally(c *gin.Context) {
	tally, err := s.governance.GetTally(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tally)
}

type castVoteRequest struct {
	Vote string `json:"vote" binding:"required"`
}

func (s *Server) handleCastVote(c *gin.Context) {
	var req castVoteRequest
	if !s.bind(c, &req) {
		return
	}
	result, err := s.governance.CastVote(c.Request.Context(), c.Param("id"), c.GetHeader(UserHeader), req.Vote)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleAdminDecision(approve bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		decide := s.governance.AdminReject
		if approve {
			decide = s.governance.AdminApprove
		}
		app, err := decide(c.Request.Context(), c.Param("id"), c.GetHeader(UserHeader))
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, app)
	}
}

// ====================
// Allocations
// ====================

type reserveRequest struct {
	BusinessID string          `json:"businessId" binding:"required"`
	PitchID    string          `json:"pitchId" binding:"required"`
	ICANAmount decimal.Decimal `json:"icanAmount"`
}

// handleReserve answers 201 with the reservation, or 422 with the cap
// details when the amount would exceed the investor's cap.
func (s *Server) handleReserve(c *gin.Context) {
	var req reserveRequest
	if !s.bind(c, &req) {
		return
	}
	decision, err := s.allocations.CheckAndReserve(c.Request.Context(), c.GetHeader(UserHeader), req.BusinessID, req.PitchID, req.ICANAmount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !decision.Allowed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    apperrors.AsStandardError(decision.Err()),
			"decision": decision,
		})
		return
	}
	c.JSON(http.StatusCreated, decision)
}

func (s *Server) handleGetAllocation(c *gin.Context) {
	alloc, err := s.allocations.GetAllocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if alloc.InvestorID != c.GetHeader(UserHeader) {
		s.writeError(c, apperrors.NewForbiddenError("allocation belongs to another investor"))
		return
	}
	c.JSON(http.StatusOK, alloc)
}

func (s *Server) handleHeadroom(c *gin.Context) {
	details, err := s.allocations.Summary(c.Request.Context(), c.GetHeader(UserHeader), c.Query("businessId"), c.Param("pitchId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// ====================
// Rate locks
// ====================

type lockRateRequest struct {
	FromCurrency string `json:"fromCurrency" binding:"required"`
	ToCurrency   string `json:"toCurrency" binding:"required"`
	TxID         string `json:"txId" binding:"required"`
	TxType       string `json:"txType" binding:"required"`
}

func (s *Server) handleLockRate(c *gin.Context) {
	var req lockRateRequest
	if !s.bind(c, &req) {
		return
	}
	txType, err := models.ParseTxType(req.TxType)
	if err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	lock, err := s.rateLocks.LockRate(c.Request.Context(), req.FromCurrency, req.ToCurrency, req.TxID, txType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, lock)
}

func (s *Server) handleGetLock(c *gin.Context) {
	lock, err := s.rateLocks.GetLock(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lock)
}

func (s *Server) handleConsumeLock(c *gin.Context) {
	lock, err := s.rateLocks.ConsumeLock(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lock)
}

type conversionRequest struct {
	ICANAmount  decimal.Decimal `json:"icanAmount"`
	LockedRate  decimal.Decimal `json:"lockedRate"`
	CountryCode string          `json:"countryCode" binding:"required"`
	TxType      string          `json:"txType" binding:"required"`
}

func (s *Server) handleConversion(c *gin.Context) {
	var req conversionRequest
	if !s.bind(c, &req) {
		return
	}
	txType, err := models.ParseTxType(req.TxType)
	if err != nil {
		s.writeError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	conv, err := s.rateLocks.CalculateConversion(req.ICANAmount, req.LockedRate, req.CountryCode, txType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ====================
// Audit
// ====================

func (s *Server) handleAuditTrail(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "100"))
	entries, err := s.audit.Trail(c.Request.Context(), c.Param("resourceId"), size)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
