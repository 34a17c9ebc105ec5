// Package api is the request/response client for the negotiation backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zulandar/procurebot/internal/models"
)

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL    string        // e.g. https://procurebot-backend.example.com
	Timeout    time.Duration // 0 means only the transport's own limits apply
	HTTPClient *http.Client  // optional; overrides Timeout
}

// Client talks to the negotiation backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// Credentials identify a buyer for dashboard operations.
type Credentials struct {
	Email string `json:"email"`
	Code  string `json:"dashboard_code"`
}

// CreateRequest is the payload of a negotiation creation call.
type CreateRequest struct {
	Name          string               `json:"name"`
	BuyerEmail    string               `json:"buyer_email"`
	SupplierEmail string               `json:"supplier_email"`
	DashboardCode string               `json:"dashboard_code"`
	TargetDetails models.TargetDetails `json:"target_details"`
}

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string // the body's "error" field, or the HTTP status text
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err wraps a backend Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// NewClient returns a Client for the backend at opts.BaseURL.
func NewClient(opts ClientOpts) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{baseURL: strings.TrimRight(opts.BaseURL, "/"), http: hc}, nil
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// CodeExists reports whether a dashboard access code has been set for email.
// It does not authenticate.
func (c *Client) CodeExists(ctx context.Context, email string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	path := "/api/negotiations/code-exists/" + url.PathEscape(strings.TrimSpace(email))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, fmt.Errorf("api: code exists: %w", err)
	}
	return out.Exists, nil
}

// ListByBuyer authenticates with creds and returns every negotiation the
// buyer owns.
func (c *Client) ListByBuyer(ctx context.Context, creds Credentials) ([]models.Negotiation, error) {
	var out []models.Negotiation
	body := Credentials{Email: strings.TrimSpace(creds.Email), Code: strings.TrimSpace(creds.Code)}
	if err := c.do(ctx, http.MethodPost, "/api/negotiations/by-buyer", body, &out); err != nil {
		return nil, fmt.Errorf("api: list by buyer: %w", err)
	}
	if out == nil {
		out = []models.Negotiation{}
	}
	return out, nil
}

// CreateNegotiation creates one negotiation and returns its id.
func (c *Client) CreateNegotiation(ctx context.Context, req CreateRequest) (string, error) {
	var out struct {
		ID json.RawMessage `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/negotiations", req, &out); err != nil {
		return "", fmt.Errorf("api: create negotiation: %w", err)
	}
	id := decodeID(out.ID)
	if id == "" {
		return "", errors.New("api: create negotiation: response has no id")
	}
	return id, nil
}

// GetNegotiation fetches the full record, chat history included.
func (c *Client) GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error) {
	var out models.Negotiation
	if err := c.do(ctx, http.MethodGet, "/api/negotiations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("api: get negotiation %s: %w", id, err)
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// DeleteNegotiation deletes a negotiation on behalf of the buyer in creds.
func (c *Client) DeleteNegotiation(ctx context.Context, id string, creds Credentials) error {
	if err := c.do(ctx, http.MethodDelete, "/api/negotiations/"+url.PathEscape(id), creds, nil); err != nil {
		return fmt.Errorf("api: delete negotiation %s: %w", id, err)
	}
	return nil
}

// ExportURL returns the PDF export URL of a negotiation.
func (c *Client) ExportURL(id string) string {
	return c.baseURL + "/api/negotiations/" + url.PathEscape(id) + "/export-pdf"
}

// ExportPDF opens the PDF export stream. The caller must close it.
func (c *Client) ExportPDF(ctx context.Context, id string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ExportURL(id), nil)
	if err != nil {
		return nil, fmt.Errorf("api: export pdf %s: %w", id, err)
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: export pdf %s: %w", id, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("api: export pdf %s: %w", id, decodeError(resp))
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		}
	} else if s := strings.TrimSpace(string(data)); s != "" && len(s) < 200 {
		apiErr.Message = s
	}
	return apiErr
}

// decodeID accepts an id sent as a JSON string or number.
func decodeID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
