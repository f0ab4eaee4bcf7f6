package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fascinante-digital/gateway/internal/config"
	"github.com/fascinante-digital/gateway/internal/gateway"
)

// DataForSEOClient proxies to the DataForSEO v3 API with HTTP basic auth.
// Credentials stay server-side; callers only see the response envelope.
type DataForSEOClient struct {
	config config.DataForSEOConfig
	logger *logrus.Logger
	client *http.Client
}

// costEnvelope extracts the provider-reported cost from a response body
// without constraining the rest of the payload.
type costEnvelope struct {
	Cost float64 `json:"cost"`
}

// dataForSEOStatusOK is the provider's top-level success code. Failures
// such as 40200 "Payment Required" arrive over HTTP 200 with this field
// set accordingly.
const dataForSEOStatusOK = 20000

type statusEnvelope struct {
	StatusCode int `json:"status_code"`
}

// Successful reports whether a DataForSEO payload carries the provider's
// success status. Error envelopes must not be cached.
func Successful(payload any) bool {
	raw, ok := payload.(json.RawMessage)
	if !ok {
		return false
	}
	var envelope statusEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return false
	}
	return envelope.StatusCode == dataForSEOStatusOK
}

func NewDataForSEOClient(cfg config.DataForSEOConfig, logger *logrus.Logger) *DataForSEOClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DataForSEOClient{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// Call forwards a request to the given v3 path and returns the raw
// response payload plus the cost the provider reported for it.
func (c *DataForSEOClient) Call(ctx context.Context, method, path string, body any) (json.RawMessage, float64, error) {
	endpoint := "dataforseo:" + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v3/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.config.Login, c.config.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	payload, err := doJSON(c.client, req, endpoint)
	if err != nil {
		return nil, 0, err
	}

	var envelope costEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		c.logger.WithError(err).Debug("Response carries no cost envelope")
	}

	return payload, envelope.Cost, nil
}

// doJSON executes a request and returns the body, translating transport
// and status failures into upstream errors.
func doJSON(client *http.Client, req *http.Request, endpoint string) (json.RawMessage, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &gateway.UpstreamError{Endpoint: endpoint, StatusCode: http.StatusBadGateway, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &gateway.UpstreamError{Endpoint: endpoint, StatusCode: http.StatusBadGateway, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &gateway.UpstreamError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("upstream returned status %d", resp.StatusCode),
		}
	}

	return json.RawMessage(body), nil
}
