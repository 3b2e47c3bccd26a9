// Package processor adapts the external payment processor's REST API to the
// engine's ProcessorClient port.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/servilink/payhold/internal/application"
	"github.com/servilink/payhold/internal/config"
)

type HTTPProcessorClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewProcessorClient(cfg config.ProcessorConfig) application.ProcessorClient {
	return &HTTPProcessorClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
	}
}

func (c *HTTPProcessorClient) CreateHold(ctx context.Context, req application.CreateHoldRequest, idempotencyKey string) (*application.CreateHoldResponse, error) {
	url := fmt.Sprintf("%s/api/v1/holds", c.baseURL)
	return sendRequest[application.CreateHoldRequest, application.CreateHoldResponse](c, ctx, http.MethodPost, url, &req, idempotencyKey)
}

func (c *HTTPProcessorClient) Capture(ctx context.Context, processorRef string, idempotencyKey string) (*application.CaptureResponse, error) {
	url := fmt.Sprintf("%s/api/v1/holds/%s/capture", c.baseURL, processorRef)
	return sendRequest[struct{}, application.CaptureResponse](c, ctx, http.MethodPost, url, &struct{}{}, idempotencyKey)
}

func (c *HTTPProcessorClient) Cancel(ctx context.Context, processorRef string, idempotencyKey string) (*application.CancelResponse, error) {
	url := fmt.Sprintf("%s/api/v1/holds/%s/cancel", c.baseURL, processorRef)
	return sendRequest[struct{}, application.CancelResponse](c, ctx, http.MethodPost, url, &struct{}{}, idempotencyKey)
}

func (c *HTTPProcessorClient) GetHold(ctx context.Context, processorRef string) (*application.HoldStatusResponse, error) {
	url := fmt.Sprintf("%s/api/v1/holds/%s", c.baseURL, processorRef)
	return sendRequest[any, application.HoldStatusResponse](c, ctx, http.MethodGet, url, nil, "")
}

type processorErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func sendRequest[Req any, Resp any](c *HTTPProcessorClient, ctx context.Context, method, url string, reqBody *Req, idempotencyKey string) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var procErrResp processorErrorResponse
		if err := json.Unmarshal(body, &procErrResp); err != nil {
			return nil, &application.ProcessorError{
				Code:       "internal_error",
				Message:    string(body),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &application.ProcessorError{
			Code:       procErrResp.Err,
			Message:    procErrResp.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var procResp Resp
	if err := json.NewDecoder(resp.Body).Decode(&procResp); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &procResp, nil
}
