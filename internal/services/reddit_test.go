package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
	tu "github.com/desertthunder/rpansync/internal/testing"
)

func newTestReddit(t *testing.T, handler http.HandlerFunc) *RedditService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	srv, err := NewRedditService(RedditOptions{
		ClientID:   "test_client_id",
		BaseURL:    server.URL,
		UserAgent:  "rpansync-test/1.0",
		PageSize:   2,
		HTTPClient: server.Client(),
	}, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	srv.Authenticate(context.Background(), &oauth2.Token{AccessToken: "test_token", TokenType: "bearer"})
	return srv
}

func TestRedditService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewRedditService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewRedditService(RedditOptions{ClientID: "id", ClientSecret: "secret"}, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Reddit" {
				t.Errorf("expected service name 'Reddit', got %s", srv.Name())
			}
			if srv.pageSize != defaultPageSize {
				t.Errorf("expected default page size, got %d", srv.pageSize)
			}
			if srv.userAgent != defaultUserAgent {
				t.Errorf("expected default user agent, got %s", srv.userAgent)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewRedditService(RedditOptions{ClientSecret: "secret"}, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, _ := NewRedditService(RedditOptions{ClientID: "id", RedirectURI: "http://localhost:3000/callback"}, nil)
		raw := srv.AuthURL("state-123")

		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("invalid auth URL: %v", err)
		}
		q := u.Query()
		if !strings.HasPrefix(raw, redditAuthURL) {
			t.Errorf("unexpected auth URL %s", raw)
		}
		if q.Get("state") != "state-123" || q.Get("duration") != "permanent" || q.Get("client_id") != "id" {
			t.Errorf("unexpected query %v", q)
		}
		if !strings.Contains(q.Get("scope"), "mysubreddits") {
			t.Errorf("expected mysubreddits scope, got %s", q.Get("scope"))
		}
	})

	t.Run("Not Authenticated", func(t *testing.T) {
		srv, _ := NewRedditService(RedditOptions{ClientID: "id"}, nil)
		if _, err := srv.FollowedPage(ctx, ""); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if _, err := srv.Token(); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("FollowedPage", func(t *testing.T) {
		var seen []string
		srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/subreddits/mine/subscriber" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test_token" {
				t.Errorf("unexpected auth header %q", got)
			}
			if got := r.Header.Get("User-Agent"); got != "rpansync-test/1.0" {
				t.Errorf("unexpected user agent %q", got)
			}
			if got := r.URL.Query().Get("limit"); got != "2" {
				t.Errorf("expected limit 2, got %s", got)
			}
			seen = append(seen, r.URL.Query().Get("after"))

			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("after") == "" {
				w.Write([]byte(`{"kind":"Listing","data":{"after":"t5_next","children":[
					{"kind":"t5","data":{"display_name":"u_alice","subreddit_type":"user","icon_img":"https://example.com/a.png"}},
					{"kind":"t5","data":{"display_name":"pan","subreddit_type":"public","icon_img":""}}
				]}}`))
				return
			}
			w.Write([]byte(`{"kind":"Listing","data":{"after":null,"children":[
				{"kind":"t5","data":{"display_name":"u_bob","subreddit_type":"user","icon_img":""}}
			]}}`))
		})

		first, err := srv.FollowedPage(ctx, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(first.Items) != 2 || first.Next != "t5_next" {
			t.Fatalf("unexpected first page %+v", first)
		}
		if first.Items[0].Username() != "alice" || !first.Items[0].IsUser() || first.Items[1].IsUser() {
			t.Errorf("unexpected items %+v", first.Items)
		}

		last, err := srv.FollowedPage(ctx, first.Next)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !last.Next.IsVacant() || len(last.Items) != 1 {
			t.Errorf("unexpected last page %+v", last)
		}
		if !slices.Equal(seen, []string{"", "t5_next"}) {
			t.Errorf("unexpected cursors %v", seen)
		}
	})

	t.Run("UserProfile", func(t *testing.T) {
		srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/user/alice/about":
				w.Write([]byte(`{"kind":"t2","data":{"name":"alice","icon_img":"https://example.com/alice.png"}}`))
			case "/user/noicon/about":
				w.Write([]byte(`{"kind":"t2","data":{"name":"noicon","icon_img":""}}`))
			default:
				http.NotFound(w, r)
			}
		})

		profile, err := srv.UserProfile(ctx, "alice")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if profile.IconURL != "https://example.com/alice.png" {
			t.Errorf("unexpected icon %s", profile.IconURL)
		}

		fallback, err := srv.UserProfile(ctx, "noicon")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !slices.Contains(models.DefaultIcons, fallback.IconURL) {
			t.Errorf("expected a stock icon, got %s", fallback.IconURL)
		}

		if _, err := srv.UserProfile(ctx, "ghost"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := srv.UserProfile(ctx, ""); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Me", func(t *testing.T) {
		srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/me" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(`{"name":"carol"}`))
		})

		name, err := srv.Me(ctx)
		if err != nil || name != "carol" {
			t.Errorf("got %q, %v", name, err)
		}
	})

	t.Run("Error Mapping", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			body   string
			want   error
		}{
			{name: "unauthorized", status: http.StatusUnauthorized, want: shared.ErrTokenExpired},
			{name: "not found", status: http.StatusNotFound, want: shared.ErrNotFound},
			{name: "server error", status: http.StatusInternalServerError, want: shared.ErrAPIRequest},
			{name: "too many requests", status: http.StatusTooManyRequests, want: shared.ErrAPIRequest},
			{name: "bad json", status: http.StatusOK, body: "{", want: shared.ErrAPIRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				})
				if _, err := srv.FollowedPage(ctx, ""); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("Network Failure", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		base := server.URL
		server.Close()

		srv, _ := NewRedditService(RedditOptions{ClientID: "id", BaseURL: base}, nil)
		srv.Authenticate(ctx, &oauth2.Token{AccessToken: "tok"})
		if _, err := srv.Me(ctx); !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})

	t.Run("Body Read Failure", func(t *testing.T) {
		resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: &tu.FCloser{}}
		srv, _ := NewRedditService(RedditOptions{
			ClientID:   "id",
			BaseURL:    "https://oauth.example.com",
			HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)},
		}, nil)
		srv.Authenticate(ctx, &oauth2.Token{AccessToken: "tok"})
		if _, err := srv.FollowedPage(ctx, ""); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		srv, _ := NewRedditService(RedditOptions{
			ClientID:   "id",
			BaseURL:    "https://oauth.example.com",
			HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset"))},
		}, nil)
		srv.Authenticate(ctx, &oauth2.Token{AccessToken: "tok"})
		if _, err := srv.UserProfile(ctx, "alice"); !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name":"carol"}`))
		})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := srv.Me(cctx); err == nil {
			t.Error("expected error for cancelled context")
		}
	})

	t.Run("Token", func(t *testing.T) {
		srv := newTestReddit(t, func(w http.ResponseWriter, r *http.Request) {})
		token, err := srv.Token()
		if err != nil || token.AccessToken != "test_token" {
			t.Errorf("got %+v, %v", token, err)
		}
	})
}
