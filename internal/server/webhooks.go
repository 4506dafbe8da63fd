package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook acknowledges processed, ignored and duplicate
// deliveries with 200. Anything else is reported so the gateway retries.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.reconSvc.Ingest(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok", "received": true})
	case errors.Is(err, reconciliationdomain.ErrEventAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "received": true})
	case errors.Is(err, reconciliationdomain.ErrEventIgnored):
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "received": true})
	default:
		AbortWithError(c, err)
	}
}
