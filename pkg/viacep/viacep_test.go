package viacep

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const paulistaJSON = `{
  "cep": "01310-100",
  "logradouro": "Avenida Paulista",
  "complemento": "de 612 a 1510 - lado par",
  "unidade": "",
  "bairro": "Bela Vista",
  "localidade": "São Paulo",
  "uf": "SP",
  "estado": "São Paulo",
  "regiao": "Sudeste",
  "ibge": "3550308",
  "gia": "1004",
  "ddd": "11",
  "siafi": "7107"
}`

func TestNormalizeCEP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"01310-100", "01310100", true},
		{" 01310100 ", "01310100", true},
		{"01.310-100", "01310100", true},
		{"123", "123", false},
		{"", "", false},
		{"013101000", "013101000", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeCEP(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeCEP(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLookupFound(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(paulistaJSON))
	}))
	defer srv.Close()

	addr, err := NewClient(Config{BaseURL: srv.URL + "/ws"}).Lookup(context.Background(), "01310-100")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if gotPath != "/ws/01310100/json" {
		t.Fatalf("path = %q", gotPath)
	}
	if addr.UF != "SP" || addr.Localidade != "São Paulo" {
		t.Fatalf("address = %+v", addr)
	}

	fields := addr.ToCustomerAddress()
	want := CustomerAddress{
		Zipcode:      "01310-100",
		Street:       "Avenida Paulista",
		Neighborhood: "Bela Vista",
		City:         "São Paulo",
		State:        "SP",
	}
	if fields != want {
		t.Fatalf("ToCustomerAddress() = %+v, want %+v", fields, want)
	}
}

func TestLookupInvalidCEPMakesNoRequest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Lookup(context.Background(), "123")
	if !errors.Is(err, ErrInvalidCEP) {
		t.Fatalf("error = %v, want ErrInvalidCEP", err)
	}
	if err.Error() != "Invalid CEP. Must contain 8 digits." {
		t.Fatalf("message = %q", err.Error())
	}
	if calls.Load() != 0 {
		t.Fatalf("server called %d times", calls.Load())
	}
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"erro": true}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Lookup(context.Background(), "99999-999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestLookupTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond}).Lookup(context.Background(), "01310100")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestLookupServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Lookup(context.Background(), "01310100")
	if err == nil || err.Error() != "Error fetching CEP." {
		t.Fatalf("error = %v", err)
	}
}
