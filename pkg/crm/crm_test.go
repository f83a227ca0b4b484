package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateCustomerSendsBearerAndParsesID(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":123,"name":"Ana Silva"}`))
	}))
	defer srv.Close()

	client := MustNew(Config{Host: srv.URL + "/", Token: " secret "})
	created, err := client.CreateCustomer(context.Background(), map[string]string{"name": "Ana Silva"})
	if err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotPath != "/api/v1/customers" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["name"] != "Ana Silva" {
		t.Fatalf("body = %#v", gotBody)
	}
	if created.ID != "123" {
		t.Fatalf("ID = %q, want 123", created.ID)
	}
	if string(created.Data) != `{"id":123,"name":"Ana Silva"}` {
		t.Fatalf("Data = %s", created.Data)
	}
}

func TestCreateCustomerFallsBackToCustomerID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"customerId":"c-9"}`))
	}))
	defer srv.Close()

	created, err := MustNew(Config{Host: srv.URL, Token: "t"}).CreateCustomer(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("CreateCustomer() error = %v", err)
	}
	if created.ID != "c-9" {
		t.Fatalf("ID = %q, want c-9", created.ID)
	}
}

func TestCreateCustomerAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{ "message": "email already taken" }`))
	}))
	defer srv.Close()

	_, err := MustNew(Config{Host: srv.URL, Token: "t"}).CreateCustomer(context.Background(), struct{}{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("StatusCode = %d", apiErr.StatusCode)
	}
	if apiErr.Error() != `{"message":"email already taken"}` {
		t.Fatalf("Error() = %q", apiErr.Error())
	}
}

func TestNewClientRequiresHostAndToken(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Token: "t"}); err == nil {
		t.Fatal("expected error for empty host")
	}
	if _, err := NewClient(Config{Host: "http://crm.local"}); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewClient(Config{Host: "not a url", Token: "t"}); err == nil {
		t.Fatal("expected error for invalid host")
	}
}
