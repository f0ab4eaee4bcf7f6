package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
)

// PageSpeedClient calls the Google PageSpeed Insights API. The API key is
// appended server-side so clients never handle it.
type PageSpeedClient struct {
	config config.PageSpeedConfig
	logger *logrus.Logger
	client *http.Client
}

func NewPageSpeedClient(cfg config.PageSpeedConfig, logger *logrus.Logger) *PageSpeedClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PageSpeedClient{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// Analyze runs a PageSpeed audit for target with the given strategy and
// Lighthouse categories.
func (c *PageSpeedClient) Analyze(ctx context.Context, target, strategy string, categories []string) (json.RawMessage, float64, error) {
	query := url.Values{}
	query.Set("url", target)
	if strategy != "" {
		query.Set("strategy", strategy)
	}
	for _, category := range categories {
		query.Add("category", category)
	}
	if c.config.APIKey != "" {
		query.Set("key", c.config.APIKey)
	}

	endpoint := strings.TrimSuffix(c.config.BaseURL, "/") + "/runPagespeed?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	payload, err := doJSON(c.client, req, "pagespeed")
	if err != nil {
		return nil, 0, err
	}
	return payload, 0, nil
}
