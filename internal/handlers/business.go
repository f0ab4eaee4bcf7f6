package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
	"github.com/fascinante-digital/gateway/internal/upstream"
	"github.com/fascinante-digital/gateway/internal/validation"
)

const businessCacheTTL = time.Hour

const businessInfoSchema = `{
	"type": "object",
	"required": ["keyword"],
	"properties": {
		"keyword": {"type": "string", "minLength": 1, "maxLength": 200},
		"location_name": {"type": "string", "maxLength": 200},
		"language_code": {"type": "string", "minLength": 2, "maxLength": 5}
	},
	"additionalProperties": false
}`

const businessReviewsSchema = `{
	"type": "object",
	"required": ["keyword"],
	"properties": {
		"keyword": {"type": "string", "minLength": 1, "maxLength": 200},
		"location_name": {"type": "string", "maxLength": 200},
		"depth": {"type": "integer", "minimum": 10, "maximum": 700}
	},
	"additionalProperties": false
}`

const businessSearchSchema = `{
	"type": "object",
	"required": ["keyword"],
	"properties": {
		"keyword": {"type": "string", "minLength": 1, "maxLength": 200},
		"location_name": {"type": "string", "maxLength": 200}
	},
	"additionalProperties": false
}`

// BusinessHandler dispatches Google Business Profile operations through a
// registry of named actions, each with its own parameter schema.
type BusinessHandler struct {
	config   *config.Config
	logger   *logrus.Logger
	pipeline *gateway.Pipeline
	registry *gateway.Registry
}

func NewBusinessHandler(cfg *config.Config, logger *logrus.Logger, pipeline *gateway.Pipeline, client *upstream.DataForSEOClient) (*BusinessHandler, error) {
	registry := gateway.NewRegistry()

	actions := []gateway.Action{
		gateway.NewSchemaAction("business_info", businessInfoSchema, businessCacheTTL,
			func(ctx context.Context, params map[string]any) (any, float64, error) {
				return client.Call(ctx, http.MethodPost, "business_data/google/my_business_info/live", taskBody(params))
			}),
		gateway.NewSchemaAction("reviews", businessReviewsSchema, businessCacheTTL,
			func(ctx context.Context, params map[string]any) (any, float64, error) {
				return client.Call(ctx, http.MethodPost, "business_data/google/reviews/live", taskBody(params))
			}),
		gateway.NewSchemaAction("search", businessSearchSchema, businessCacheTTL,
			func(ctx context.Context, params map[string]any) (any, float64, error) {
				return client.Call(ctx, http.MethodPost, "serp/google/maps/live/advanced", taskBody(params))
			}),
	}

	for _, action := range actions {
		if err := registry.Register(action); err != nil {
			return nil, err
		}
	}

	return &BusinessHandler{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		registry: registry,
	}, nil
}

// Dispatch handles GET and POST /api/v1/google-my-business. The action
// query parameter selects the operation; remaining parameters come from
// the query string or a JSON body.
func (h *BusinessHandler) Dispatch(c *gin.Context) {
	actionName := c.Query("action")
	if actionName == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "MISSING_ACTION",
				"message": "The action query parameter is required",
				"actions": h.registry.Names(),
			},
		})
		return
	}

	action, ok := h.registry.Get(actionName)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "UNKNOWN_ACTION",
				"message": "Unknown action: " + actionName,
				"actions": h.registry.Names(),
			},
		})
		return
	}

	params, err := h.collectParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Request body must be a JSON object",
			},
		})
		return
	}

	if err := action.Validate(params); err != nil {
		body := gin.H{
			"code":    "VALIDATION_FAILED",
			"message": "Action parameters failed validation",
		}
		if result, ok := err.(validation.Result); ok {
			body["details"] = result.Errors
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": body})
		return
	}

	runPipeline(c, h.logger, h.pipeline, gateway.Request{
		Endpoint: "google-my-business:" + action.Name(),
		Method:   c.Request.Method,
		Params:   params,
		TTL:      action.CacheTTL(),
		Call: func(ctx context.Context) (any, float64, error) {
			return action.Execute(ctx, params)
		},
		Cacheable: upstream.Successful,
	})
}

// collectParams merges query parameters with a JSON object body; body
// fields win on conflict. The action selector itself is not a parameter.
func (h *BusinessHandler) collectParams(c *gin.Context) (map[string]any, error) {
	params := make(map[string]any)
	for key, values := range c.Request.URL.Query() {
		if key == "action" || len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}

	if c.Request.Method == http.MethodPost {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		for key, value := range body {
			params[key] = value
		}
	}

	return params, nil
}

// taskBody wraps validated parameters in the single-task array shape the
// provider's live endpoints expect.
func taskBody(params map[string]any) []map[string]any {
	task := make(map[string]any, len(params)+1)
	for key, value := range params {
		task[key] = value
	}
	if _, ok := task["language_code"]; !ok {
		task["language_code"] = "en"
	}
	return []map[string]any{task}
}
