package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	registrationdomain "github.com/smallbiznis/gymledger/internal/registration/domain"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.registrationSvc.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plans})
}

// Register answers 202 when the member rows were created but the gateway
// setup has to be retried.
func (s *Server) Register(c *gin.Context) {
	var req registrationdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.registrationSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.PartialSuccess {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	var req registrationdomain.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.registrationSvc.ConfirmPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
