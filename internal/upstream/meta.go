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

// MetaClient queries the Meta Ad Library through the Graph API. The
// long-lived access token is injected server-side.
type MetaClient struct {
	config config.MetaConfig
	logger *logrus.Logger
	client *http.Client
}

func NewMetaClient(cfg config.MetaConfig, logger *logrus.Logger) *MetaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MetaClient{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// SearchAds searches the ad archive. Pass-through parameters are already
// validated by the handler; only the token is added here.
func (c *MetaClient) SearchAds(ctx context.Context, params map[string]string) (json.RawMessage, float64, error) {
	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("access_token", c.config.AccessToken)

	endpoint := strings.TrimSuffix(c.config.BaseURL, "/") + "/ads_archive?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}

	payload, err := doJSON(c.client, req, "meta:ad-library")
	if err != nil {
		return nil, 0, err
	}
	return payload, 0, nil
}
