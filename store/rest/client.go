// Package rest persists connections and destinations through a PostgREST
// compatible row API, the same surface the original Supabase-backed data
// path speaks. Rows written here stay readable by any other client of the
// same tables.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-driveconnect/core"
)

const (
	maxResponseBodyBytes = 10 << 20 // 10 MiB
	preferUpsertMerge    = "resolution=merge-duplicates,return=representation"
	preferReturnMinimal  = "return=minimal"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// rowClient wraps one PostgREST base URL plus the service key both auth
// headers carry. It only knows rows and filters; table semantics live in the
// stores built on top.
type rowClient struct {
	baseURL    string
	serviceKey string
	httpClient HTTPDoer
	timeout    time.Duration
}

func newRowClient(cfg core.StoreConfig, httpClient HTTPDoer) (*rowClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("rest: store url is required")
	}
	serviceKey := strings.TrimSpace(cfg.ServiceKey)
	if serviceKey == "" {
		return nil, fmt.Errorf("rest: store service key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	return &rowClient{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		httpClient: httpClient,
		timeout:    cfg.RequestTimeout(),
	}, nil
}

// selectRows runs a filtered GET and decodes the JSON array response.
func (c *rowClient) selectRows(ctx context.Context, table string, query url.Values, out any) error {
	body, err := c.do(ctx, http.MethodGet, table, query, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return storeError(fmt.Errorf("rest: decode %s rows: %w", table, err))
	}
	return nil
}

// upsertRow POSTs one row with on_conflict merge resolution and decodes the
// representation the server returns.
func (c *rowClient) upsertRow(ctx context.Context, table string, onConflict string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return storeError(fmt.Errorf("rest: encode %s row: %w", table, err))
	}
	query := url.Values{}
	query.Set("on_conflict", onConflict)

	body, err := c.do(ctx, http.MethodPost, table, query, encoded, preferUpsertMerge)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return storeError(fmt.Errorf("rest: decode %s upsert response: %w", table, err))
	}
	return nil
}

// patchRows updates every row matching the filters.
func (c *rowClient) patchRows(ctx context.Context, table string, query url.Values, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return storeError(fmt.Errorf("rest: encode %s patch: %w", table, err))
	}
	_, err = c.do(ctx, http.MethodPatch, table, query, encoded, preferReturnMinimal)
	return err
}

func (c *rowClient) do(ctx context.Context, method, table string, query url.Values, body []byte, prefer string) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, storeError(fmt.Errorf("rest: row client is not configured"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, storeError(fmt.Errorf("rest: table name is required"))
	}

	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return nil, storeError(fmt.Errorf("rest: build %s request: %w", table, err))
	}
	httpReq.Header.Set("apikey", c.serviceKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.serviceKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		httpReq.Header.Set("Prefer", prefer)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "rest: row request failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectErrorTransient)
	}
	defer response.Body.Close()

	payload, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes+1))
	if readErr != nil {
		return nil, storeError(fmt.Errorf("rest: read %s response: %w", table, readErr))
	}
	if int64(len(payload)) > maxResponseBodyBytes {
		return nil, storeError(fmt.Errorf("rest: %s response exceeds %d bytes", table, maxResponseBodyBytes))
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, storeError(fmt.Errorf(
			"rest: %s %s returned %d: %s",
			method, table, response.StatusCode, summarizeBody(payload),
		))
	}
	return payload, nil
}

func storeError(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "rest: store operation failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ConnectErrorStoreFailed)
}

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > 512 {
		return trimmed[:512]
	}
	if trimmed == "" {
		return "<empty body>"
	}
	return trimmed
}

func eq(value string) string {
	return "eq." + value
}
