// Package viacep looks up Brazilian postal codes (CEP) through the ViaCEP
// public API.
package viacep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const DefaultBaseURL = "https://viacep.com.br/ws"

var (
	ErrInvalidCEP = errors.New("Invalid CEP. Must contain 8 digits.")
	ErrNotFound   = errors.New("CEP not found.")
	ErrTimeout    = errors.New("Timeout while fetching CEP. Try again.")
)

type Config struct {
	BaseURL string        `split_words:"true" default:"https://viacep.com.br/ws"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

// Address mirrors the ViaCEP response document.
type Address struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Unidade     string `json:"unidade"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Estado      string `json:"estado"`
	Regiao      string `json:"regiao"`
	IBGE        string `json:"ibge"`
	GIA         string `json:"gia"`
	DDD         string `json:"ddd"`
	SIAFI       string `json:"siafi"`
}

// CustomerAddress is an Address reduced to the address fields of a CRM
// customer record.
type CustomerAddress struct {
	Zipcode      string `json:"zipcode"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

func (a Address) ToCustomerAddress() CustomerAddress {
	return CustomerAddress{
		Zipcode:      a.CEP,
		Street:       a.Logradouro,
		Neighborhood: a.Bairro,
		City:         a.Localidade,
		State:        a.UF,
	}
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NormalizeCEP strips every non-digit and reports whether exactly eight
// digits remain.
func NormalizeCEP(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cep := b.String()
	return cep, len(cep) == 8
}

// Lookup resolves a CEP. Malformed input fails with ErrInvalidCEP before any
// request is made.
func (c *Client) Lookup(ctx context.Context, zipcode string) (Address, error) {
	cep, ok := NormalizeCEP(zipcode)
	if !ok {
		return Address{}, ErrInvalidCEP
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+cep+"/json", nil)
	if err != nil {
		return Address{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Address{}, ErrTimeout
		}
		return Address{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return Address{}, ErrTimeout
		}
		return Address{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if body := bytes.TrimSpace(raw); len(body) > 0 {
			return Address{}, errors.New(string(body))
		}
		return Address{}, errors.New("Error fetching CEP.")
	}

	// ViaCEP answers unknown codes with 200 and {"erro": true}; some
	// deployments send the flag as a string.
	if erro := gjson.GetBytes(raw, "erro"); erro.Exists() && (erro.Bool() || erro.String() == "true") {
		return Address{}, ErrNotFound
	}

	var addr Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	return addr, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
