package crm

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

	"github.com/tidwall/gjson"
)

const customersPath = "/api/v1/customers"

type Config struct {
	Host    string        `split_words:"true" required:"true"`
	Token   string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Created is a successful create-customer response.
type Created struct {
	// ID is the record identifier taken from "id" or "customerId"; empty when
	// the CRM returned neither.
	ID   string
	Data json.RawMessage
}

// APIError is a non-2xx CRM response.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return fmt.Sprintf("Request failed with status code %d", e.StatusCode)
	}
	if json.Valid(body) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, body); err == nil {
			return compact.String()
		}
	}
	return string(body)
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.Host)
	if baseURL == "" {
		return nil, errors.New("crm host is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("crm host: %w", err)
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("crm token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// CreateCustomer posts payload as JSON to the customers endpoint.
func (c *Client) CreateCustomer(ctx context.Context, payload any) (Created, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Created{}, fmt.Errorf("encode customer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+customersPath, bytes.NewReader(body))
	if err != nil {
		return Created{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Created{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Created{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Created{}, &APIError{StatusCode: resp.StatusCode, Body: raw}
	}

	created := Created{Data: json.RawMessage(raw)}
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		created.Data = quoted
		return created, nil
	}
	for _, key := range []string{"id", "customerId"} {
		if v := gjson.GetBytes(raw, key); v.Exists() && v.Type != gjson.Null && v.String() != "" {
			created.ID = v.String()
			break
		}
	}
	return created, nil
}
