package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"shareclass_hedging/approval"
	"shareclass_hedging/exposure"
	"shareclass_hedging/hedging"
	"shareclass_hedging/logs"

	"github.com/google/uuid"
)

var _ Client = (*HTTPClient)(nil)

// Endpoints of the remote hedging API.
const (
	pathCounterpartyData  = "/api/v1/bny-data"
	pathFxData            = "/api/v1/fx-data"
	pathValidation        = "/api/v1/validation"
	pathCalculation       = "/api/v1/calculation"
	pathTradeInstructions = "/api/v1/trade-instructions"
	pathApprovalAudit     = "/api/v1/approvals/audit"
	pathReporting         = "/api/v1/reporting"
	pathBookings          = "/api/v1/bookings"
)

// apiError is the error body returned by the hedging API.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// StatusError is returned for any HTTP status >= 400.
type StatusError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: API error: %s (code: %d, HTTP %d)", e.Op, e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: API error: HTTP %d", e.Op, e.StatusCode)
}

// Is makes errors.Is(err, ErrCollaborator) hold.
func (e *StatusError) Is(target error) bool { return target == ErrCollaborator }

// HTTPClient talks JSON to the remote hedging API.
type HTTPClient struct {
	BaseURL string
	Token   string
	Http    *http.Client
	mu      sync.Mutex
}

// NewHTTPClient creates a client for baseURL with a per-request timeout.
func NewHTTPClient(baseURL, token string, timeoutSeconds int) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Http:    &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

// sendRequest marshals body, sends it and decodes the response into target.
func (c *HTTPClient) sendRequest(ctx context.Context, op, method, endpoint string, body, target interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.Http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: failed to execute request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", op, err)
	}

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode}
		var errResp apiError
		if json.Unmarshal(respBody, &errResp) == nil {
			statusErr.Code = errResp.Code
			statusErr.Message = errResp.Msg
		}
		logs.Errorf("[HTTPClient] %s failed: %v", op, statusErr)
		return statusErr
	}

	if target != nil {
		if err := json.Unmarshal(respBody, target); err != nil {
			return fmt.Errorf("%s: failed to decode JSON: %w, body: %s", op, err, string(respBody))
		}
	}
	logs.Debugf("[HTTPClient] %s %s -> HTTP %d", method, endpoint, resp.StatusCode)
	return nil
}

func (c *HTTPClient) PersistCounterpartyData(ctx context.Context, records []exposure.CounterpartyRecord) error {
	return c.sendRequest(ctx, OpPersistCounterpartyData, http.MethodPost, pathCounterpartyData, records, nil)
}

func (c *HTTPClient) PersistFxData(ctx context.Context, records []exposure.Record) error {
	return c.sendRequest(ctx, OpPersistFxData, http.MethodPost, pathFxData, records, nil)
}

func (c *HTTPClient) PersistValidation(ctx context.Context, isValid bool) error {
	body := struct {
		IsValid bool `json:"is_valid"`
	}{IsValid: isValid}
	return c.sendRequest(ctx, OpPersistValidation, http.MethodPost, pathValidation, body, nil)
}

func (c *HTTPClient) PersistCalculatedInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return c.sendRequest(ctx, OpPersistCalculatedInstructions, http.MethodPost, pathCalculation, instructions, nil)
}

func (c *HTTPClient) PersistTradeInstructions(ctx context.Context, instructions []hedging.Instruction) error {
	return c.sendRequest(ctx, OpPersistTradeInstructions, http.MethodPost, pathTradeInstructions, instructions, nil)
}

func (c *HTTPClient) RecordApprovalAudit(ctx context.Context, approverName string, status approval.Status, timestamp time.Time) error {
	body := struct {
		ApproverName string          `json:"approver_name"`
		Status       approval.Status `json:"status"`
		Timestamp    time.Time       `json:"timestamp"`
	}{approverName, status, timestamp.UTC()}
	return c.sendRequest(ctx, OpRecordApprovalAudit, http.MethodPost, pathApprovalAudit, body, nil)
}

func (c *HTTPClient) FetchReportingSnapshot(ctx context.Context) ([]ReportRecord, error) {
	var records []ReportRecord
	if err := c.sendRequest(ctx, OpFetchReportingSnapshot, http.MethodGet, pathReporting, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []ReportRecord{}
	}
	return records, nil
}

func (c *HTTPClient) BookMovements(ctx context.Context, instructions []hedging.Instruction) error {
	return c.sendRequest(ctx, OpBookMovements, http.MethodPost, pathBookings, instructions, nil)
}
