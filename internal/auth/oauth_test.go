package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// fakeGitHub serves the token endpoint and /user.
func fakeGitHub(t *testing.T, userJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"bad_verification_code"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"gh-token","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(userJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFakeProvider(srv *httptest.Server) *GitHubProvider {
	return NewGitHubProvider("id", "secret", "http://localhost/auth/github/callback").
		WithEndpoints(srv.URL+"/login/oauth/authorize", srv.URL+"/login/oauth/access_token", srv.URL)
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-123", "secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-xyz"))
	if err != nil {
		t.Fatalf("AuthURL() not a URL: %v", err)
	}
	if !strings.HasPrefix(u.String(), "https://github.com/login/oauth/authorize") {
		t.Errorf("AuthURL() = %s", u)
	}
	if u.Query().Get("state") != "state-xyz" || u.Query().Get("client_id") != "client-123" {
		t.Errorf("AuthURL() query = %v", u.Query())
	}
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := fakeGitHub(t, `{"id":583231,"login":"octocat","email":"octo@example.com"}`)

	user, err := newFakeProvider(srv).Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if user.ID != 583231 || user.Login != "octocat" || user.Email != "octo@example.com" {
		t.Errorf("Exchange() = %+v", user)
	}
}

func TestGitHubProvider_ExchangeBadCode(t *testing.T) {
	srv := fakeGitHub(t, `{}`)

	if _, err := newFakeProvider(srv).Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatal("Exchange() should fail for a rejected code")
	}
}

func TestGitHubProvider_ExchangeZeroID(t *testing.T) {
	srv := fakeGitHub(t, `{"id":0,"login":"ghost"}`)

	if _, err := newFakeProvider(srv).Exchange(context.Background(), "good-code"); err == nil {
		t.Fatal("Exchange() should reject a user with ID 0")
	}
}
