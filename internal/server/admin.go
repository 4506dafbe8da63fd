package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
)

const (
	defaultActivityLimit  = 20
	maxActivityLimit      = 100
	defaultBackfillWindow = 30 * 24 * time.Hour
)

func (s *Server) ListVatPositions(c *gin.Context) {
	positions, err := s.vatSvc.Positions(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     positions,
		"vat_year": s.vatSvc.CurrentYear(),
	})
}

func (s *Server) PreviewRouting(c *gin.Context) {
	var req routingdomain.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	decision, err := s.routingSvc.Preview(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

func (s *Server) ListRoutingDecisions(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, info, err := s.routingSvc.ListDecisions(c.Request.Context(), page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	id, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError("id", "invalid_payment_id", "invalid payment id"))
		return
	}

	receipt, err := s.receiptSvc.Render(c.Request.Context(), *id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+receipt.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", receipt.Content)
}

func (s *Server) ListPayments(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var filter paymentdomain.ListFilter
	if status := strings.ToUpper(strings.TrimSpace(c.Query("status"))); status != "" {
		filter.Status = paymentdomain.PaymentStatus(status)
		if !filter.Status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
	}

	userID, err := parseOptionalSnowflakeID(c.Query("user_id"))
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}
	filter.UserID = userID

	entityID, err := parseOptionalSnowflakeID(c.Query("entity_id"))
	if err != nil {
		AbortWithError(c, newValidationError("entity_id", "invalid_entity_id", "invalid entity_id"))
		return
	}
	filter.RoutedEntityID = entityID

	items, info, err := s.paymentRepo.List(c.Request.Context(), s.db, filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
}

// RecentActivity reports the latest webhook deliveries alongside the
// subscription status counts.
func (s *Server) RecentActivity(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), defaultActivityLimit, maxActivityLimit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	ctx := c.Request.Context()
	events, err := s.reconSvc.ListRecentEvents(ctx, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	counts, err := s.subRepo.CountByStatus(ctx, s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"webhook_events":      events,
			"subscription_counts": counts,
		},
	})
}

func (s *Server) GetBalance(c *gin.Context) {
	balance, err := s.gateway.GetBalance(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balance})
}

type backfillRequest struct {
	Since  string `json:"since"`
	Until  string `json:"until"`
	DryRun bool   `json:"dry_run"`
}

// RunBackfill replays paid gateway invoices without a local payment. The
// window defaults to the last 30 days.
func (s *Server) RunBackfill(c *gin.Context) {
	var req backfillRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	until, err := parseOptionalTime(req.Until, true)
	if err != nil {
		AbortWithError(c, newValidationError("until", "invalid_until", "invalid until"))
		return
	}
	since, err := parseOptionalTime(req.Since, false)
	if err != nil {
		AbortWithError(c, newValidationError("since", "invalid_since", "invalid since"))
		return
	}

	window := reconciliationdomain.BackfillRequest{DryRun: req.DryRun}
	window.Until = s.clock.Now().UTC()
	if until != nil {
		window.Until = *until
	}
	window.Since = window.Until.Add(-defaultBackfillWindow)
	if since != nil {
		window.Since = *since
	}

	report, err := s.reconSvc.Backfill(c.Request.Context(), window)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
