package docai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Typed per-stage request/response pairs. Only orchestration-relevant fields
// are decoded; the remaining business payload stays raw for the audit trail.

// SplitRenameRequest starts a pipeline run for one stored archive.
type SplitRenameRequest struct {
	S3URI string `json:"s3_uri"`
}

// SplitRenameResponse assigns the transaction id used by all later stages.
type SplitRenameResponse struct {
	TransactionID         string          `json:"transaction_id"`
	SubDocumentsProcessed int             `json:"sub_documents_processed"`
	Results               json.RawMessage `json:"results,omitempty"`
}

// StageRequest addresses a transaction for stages 2-4.
type StageRequest struct {
	TransactionID string `json:"transaction_id"`
}

// CheckCompletenessResponse reports missing/available documents.
type CheckCompletenessResponse struct {
	CheckResult struct {
		Status             string          `json:"status"`
		MissingDocuments   []string        `json:"missing_documents,omitempty"`
		AvailableDocuments json.RawMessage `json:"available_documents,omitempty"`
	} `json:"check_result"`
}

// ExtractDataResponse carries the extracted field groups.
type ExtractDataResponse struct {
	Status           string          `json:"status"`
	ExtractedDetails json.RawMessage `json:"extracted_details,omitempty"`
}

// CrossCheckResponse reports cross-document consistency.
type CrossCheckResponse struct {
	Consistent      bool            `json:"consistent"`
	Inconsistencies json.RawMessage `json:"inconsistencies,omitempty"`
}

// Client is the document processing API consumed by the orchestrator.
type Client interface {
	SplitRename(ctx context.Context, req SplitRenameRequest) (*SplitRenameResponse, error)
	CheckCompleteness(ctx context.Context, req StageRequest) (*CheckCompletenessResponse, error)
	ExtractData(ctx context.Context, req StageRequest) (*ExtractDataResponse, error)
	CrossCheck(ctx context.Context, req StageRequest) (*CrossCheckResponse, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPClient builds the HTTP document processing client with bounded
// connect and read timeouts.
func NewHTTPClient(baseURL string, connectTimeout, readTimeout time.Duration, log *slog.Logger) Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		ResponseHeaderTimeout: readTimeout,
	}
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport, Timeout: readTimeout + connectTimeout},
		log:     log,
	}
}

func (c *httpClient) SplitRename(ctx context.Context, req SplitRenameRequest) (*SplitRenameResponse, error) {
	var resp SplitRenameResponse
	if err := c.post(ctx, "/api/v1/documents/split-rename", req, &resp); err != nil {
		return nil, err
	}
	if resp.TransactionID == "" {
		return nil, fmt.Errorf("split-rename response missing transaction_id")
	}
	return &resp, nil
}

func (c *httpClient) CheckCompleteness(ctx context.Context, req StageRequest) (*CheckCompletenessResponse, error) {
	var resp CheckCompletenessResponse
	if err := c.post(ctx, "/api/v1/documents/check-completeness", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) ExtractData(ctx context.Context, req StageRequest) (*ExtractDataResponse, error) {
	var resp ExtractDataResponse
	if err := c.post(ctx, "/api/v1/documents/extract-data", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) CrossCheck(ctx context.Context, req StageRequest) (*CrossCheckResponse, error) {
	var resp CrossCheckResponse
	if err := c.post(ctx, "/api/v1/documents/cross-check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("processing api request failed", "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("processing api %s returned status %d: %s", path, resp.StatusCode, snippet)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
