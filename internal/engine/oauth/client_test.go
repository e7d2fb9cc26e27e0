package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pipesync/internal/platform/config"
	pkgerrors "pipesync/internal/pkg/errors"
)

func clientConfig(server *httptest.Server) config.OAuthConfig {
	return config.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "https://app.example.com/oauth/callback",
		TokenURL:     server.URL + "/oauth/token",
		APIBaseURL:   server.URL + "/v1",
		HTTPTimeout:  5 * time.Second,
	}
}

func TestClient_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "csecret" {
			t.Error("Expected client credentials via basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "code123" {
			t.Errorf("Unexpected form: %v", r.Form)
		}
		if r.Form.Get("redirect_uri") == "" {
			t.Error("Expected redirect_uri in exchange form")
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	client := NewClient(clientConfig(server))
	resp, err := client.ExchangeCode(context.Background(), "code123")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if resp.AccessToken != "at" || resp.RefreshToken != "rt" || resp.ExpiresIn != 3600 {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestClient_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt" {
			t.Errorf("Unexpected form: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":3600}`))
	}))
	defer server.Close()

	client := NewClient(clientConfig(server))
	resp, err := client.RefreshToken(context.Background(), "rt")
	if err != nil {
		t.Fatalf("RefreshToken failed: %v", err)
	}
	if resp.AccessToken != "at2" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestClient_TokenErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"Client error is terminal", http.StatusBadRequest, false},
		{"Server error is transient", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(clientConfig(server))
			_, err := client.RefreshToken(context.Background(), "rt")

			var tokenErr *pkgerrors.TokenError
			if !errors.As(err, &tokenErr) {
				t.Fatalf("Expected TokenError, got %v", err)
			}
			if tokenErr.Transient != tt.transient {
				t.Errorf("Expected transient=%v, got %v", tt.transient, tokenErr.Transient)
			}
		})
	}
}

func TestClient_MissingAccessTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer server.Close()

	client := NewClient(clientConfig(server))
	if _, err := client.ExchangeCode(context.Background(), "code"); err == nil {
		t.Fatal("Expected error for response without access_token")
	}
}

func TestClient_TestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/me" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer at" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"name":"Ada","company_name":"Acme"}}`))
	}))
	defer server.Close()

	client := NewClient(clientConfig(server))
	info, err := client.TestConnection(context.Background(), "at")
	if err != nil {
		t.Fatalf("TestConnection failed: %v", err)
	}
	if info.User != "Ada" || info.Company != "Acme" {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestClient_TestConnectionUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(clientConfig(server))
	if _, err := client.TestConnection(context.Background(), "bad"); err == nil {
		t.Fatal("Expected error for unauthorized token")
	}
}
