package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/middleware"
	"github.com/fascinante-digital/gateway/internal/services"
	"github.com/fascinante-digital/gateway/pkg/models"
)

// LeadsHandler accepts marketing leads submitted through GPT Actions.
// Durable lead storage lives in a downstream CRM; this endpoint validates,
// records the capture event and acknowledges.
type LeadsHandler struct {
	logger    *logrus.Logger
	analytics *services.AnalyticsService
}

func NewLeadsHandler(logger *logrus.Logger, analytics *services.AnalyticsService) *LeadsHandler {
	return &LeadsHandler{
		logger:    logger,
		analytics: analytics,
	}
}

// Create handles POST /api/gpt-actions/leads.
func (h *LeadsHandler) Create(c *gin.Context) {
	var request models.CreateLeadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid lead submission")

		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]gin.H, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, gin.H{"field": fe.Field(), "rule": fe.Tag()})
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "VALIDATION_FAILED",
					"message": "Lead validation failed",
					"details": details,
				},
			})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_BODY",
				"message": "Request body must be valid JSON",
			},
		})
		return
	}

	lead := models.Lead{
		ID:        uuid.New(),
		Email:     request.Email,
		Consent:   request.Consent,
		CreatedAt: time.Now().UTC(),
	}

	event := models.AnalyticsEvent{
		Event:      "lead_captured",
		Endpoint:   "gpt-actions:leads",
		Method:     http.MethodPost,
		StatusCode: http.StatusCreated,
		UserAgent:  c.Request.UserAgent(),
		IP:         h.analytics.HashIP(c.ClientIP()),
		Metadata: map[string]any{
			"lead_id":     lead.ID.String(),
			"has_company": request.Company != "",
		},
	}
	if identity := middleware.IdentityFromContext(c); identity != nil {
		if identity.Mode == "api-key" {
			event.APIKey = identity.Subject
		} else {
			event.UserID = identity.Subject
		}
	}
	h.analytics.Track(event)

	h.logger.WithField("lead_id", lead.ID).Info("Lead captured")

	c.JSON(http.StatusCreated, gin.H{
		"id":         lead.ID,
		"status":     "received",
		"created_at": lead.CreatedAt,
	})
}
