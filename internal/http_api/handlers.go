package http_api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/internal/rayscout"
)

// HealthResponse is the liveness payload served on / and /health
type HealthResponse struct {
	Status      string  `json:"status"`
	Service     string  `json:"service"`
	Uptime      float64 `json:"uptime"`
	Timestamp   string  `json:"timestamp"`
	Environment string  `json:"environment"`
}

// health reports liveness only; it never touches the ledger or the oracle.
func (s *HTTPServer) health(c *gin.Context) {
	now := s.now()
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Service:     serviceName,
		Uptime:      now.Sub(s.startedAt).Seconds(),
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Environment: s.environment,
	})
}

func (s *HTTPServer) status(c *gin.Context) {
	status := s.app.Status(c.Request.Context())
	if status.LatestRecords == nil {
		status.LatestRecords = []models.TokenRecord{}
	}
	c.JSON(http.StatusOK, status)
}

// tokenReport re-assesses a detected token. Unknown tokens are 404, malformed
// addresses 400.
func (s *HTTPServer) tokenReport(c *gin.Context) {
	address := c.Param("address")

	analysis, err := s.app.Report(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, rayscout.ErrInvalidAddress) {
			s.logger.Debug("Invalid token address", "address", address, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address format: " + err.Error()})
			return
		}
		s.logger.Error("Failed to build report", "address", address, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build report"})
		return
	}

	if analysis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}
