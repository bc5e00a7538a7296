package spotify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/spotlake/internal/shared"
	"golang.org/x/time/rate"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// testClient returns a client whose limiter never blocks and whose sleeps
// are recorded instead of executed.
func testClient(t *testing.T, rt roundTripFunc, sleeps *[]time.Duration) (*Client, *TokenManager) {
	t.Helper()

	m := NewTokenManager(OAuthConfig("test_client_id", "test_client_secret", ""), &MemoryTokenStore{})
	if err := m.Seed(&Token{
		AccessToken:  "token-1",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}

	c := NewClient(m, ClientOpts{
		HTTPClient: &http.Client{Transport: rt},
		Limiter:    rate.NewLimiter(rate.Inf, 1),
		Logger:     shared.NewLogger(io.Discard),
		Sleep: func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	})
	return c, m
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends Bearer Token", func(t *testing.T) {
		var gotAuth string
		c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
			gotAuth = r.Header.Get("Authorization")
			return response(200, `{"id": "user1", "display_name": "Test"}`, nil), nil
		}, nil)

		user, err := c.CurrentUser(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if user.ID != "user1" {
			t.Errorf("expected user1, got %s", user.ID)
		}
		if gotAuth != "Bearer token-1" {
			t.Errorf("expected bearer token header, got %q", gotAuth)
		}
	})

	t.Run("Rate Limiting", func(t *testing.T) {
		t.Run("Honors Retry-After On 429", func(t *testing.T) {
			var sleeps []time.Duration
			calls := 0
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				calls++
				if calls == 1 {
					return response(429, "", http.Header{"Retry-After": {"2"}}), nil
				}
				return response(200, `{"id": "user1"}`, nil), nil
			}, &sleeps)

			if _, err := c.CurrentUser(ctx); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if calls != 2 {
				t.Errorf("expected 2 attempts, got %d", calls)
			}
			if len(sleeps) != 1 || sleeps[0] != 2*time.Second {
				t.Errorf("expected one 2s wait, got %v", sleeps)
			}
		})

		t.Run("Falls Back To Jittered Backoff", func(t *testing.T) {
			var sleeps []time.Duration
			calls := 0
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				calls++
				if calls == 1 {
					return response(429, "", nil), nil
				}
				return response(200, `{"id": "user1"}`, nil), nil
			}, &sleeps)

			if _, err := c.CurrentUser(ctx); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(sleeps) != 1 {
				t.Fatalf("expected one wait, got %v", sleeps)
			}
			// First backoff is base 1s plus up to 50% jitter.
			if sleeps[0] < time.Second || sleeps[0] > 1500*time.Millisecond {
				t.Errorf("expected wait in [1s, 1.5s], got %v", sleeps[0])
			}
		})

		t.Run("Exhausts Attempt Budget", func(t *testing.T) {
			var sleeps []time.Duration
			calls := 0
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				calls++
				return response(503, "server busy", nil), nil
			}, &sleeps)

			_, err := c.CurrentUser(ctx)
			if !errors.Is(err, shared.ErrRetriesExhausted) {
				t.Fatalf("expected ErrRetriesExhausted, got %v", err)
			}
			if !IsRetriable(err) {
				t.Error("expected exhausted error to be retriable")
			}
			if calls != 3 {
				t.Errorf("expected 3 attempts, got %d", calls)
			}
			if len(sleeps) != 2 {
				t.Errorf("expected 2 waits between 3 attempts, got %d", len(sleeps))
			}
		})
	})

	t.Run("Unauthorized", func(t *testing.T) {
		t.Run("Refreshes Once And Retries", func(t *testing.T) {
			calls := 0
			var gotAuth []string
			c, m := testClient(t, func(r *http.Request) (*http.Response, error) {
				calls++
				gotAuth = append(gotAuth, r.Header.Get("Authorization"))
				if calls == 1 {
					return response(401, "", nil), nil
				}
				return response(200, `{"id": "user1"}`, nil), nil
			}, nil)
			m.refresh = func(ctx context.Context, refreshToken string) (*Token, error) {
				return &Token{AccessToken: "token-2", RefreshToken: refreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}

			if _, err := c.CurrentUser(ctx); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if m.Refreshes() != 1 {
				t.Errorf("expected 1 refresh, got %d", m.Refreshes())
			}
			if gotAuth[1] != "Bearer token-2" {
				t.Errorf("expected retry with refreshed token, got %q", gotAuth[1])
			}
		})

		t.Run("Fails After Second 401", func(t *testing.T) {
			calls := 0
			c, m := testClient(t, func(r *http.Request) (*http.Response, error) {
				calls++
				return response(401, "", nil), nil
			}, nil)
			m.refresh = func(ctx context.Context, refreshToken string) (*Token, error) {
				return &Token{AccessToken: "token-2", RefreshToken: refreshToken, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}

			_, err := c.CurrentUser(ctx)
			if err == nil {
				t.Fatal("expected an error")
			}
			if IsRetriable(err) {
				t.Error("expected non-retriable error after second 401")
			}
			if calls != 2 {
				t.Errorf("expected 2 attempts, got %d", calls)
			}
		})
	})

	t.Run("Other 4xx Fails Immediately", func(t *testing.T) {
		calls := 0
		c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
			calls++
			return response(404, "not found", nil), nil
		}, nil)

		_, err := c.CurrentUser(ctx)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if IsRetriable(err) {
			t.Error("expected 404 to be non-retriable")
		}
		if calls != 1 {
			t.Errorf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("Batch Endpoints", func(t *testing.T) {
		t.Run("AudioFeatures Drops Nulls", func(t *testing.T) {
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				return response(200, `{"audio_features": [{"id": "t1", "danceability": 0.5}, null]}`, nil), nil
			}, nil)

			features, err := c.AudioFeatures(ctx, []string{"t1", "t2"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(features) != 1 || features[0].ID != "t1" {
				t.Errorf("expected one feature for t1, got %+v", features)
			}
		})

		t.Run("AudioFeatures Rejects Oversized Batch", func(t *testing.T) {
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				t.Fatal("no request expected")
				return nil, nil
			}, nil)

			ids := make([]string, 101)
			for i := range ids {
				ids[i] = "t"
			}
			if _, err := c.AudioFeatures(ctx, ids); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})

		t.Run("Artists Rejects Oversized Batch", func(t *testing.T) {
			c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
				t.Fatal("no request expected")
				return nil, nil
			}, nil)

			ids := make([]string, 51)
			for i := range ids {
				ids[i] = "a"
			}
			if _, err := c.Artists(ctx, ids); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	})

	t.Run("Transport Errors Retry", func(t *testing.T) {
		calls := 0
		c, _ := testClient(t, func(r *http.Request) (*http.Response, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("connection reset")
			}
			return response(200, `{"id": "user1"}`, nil), nil
		}, &[]time.Duration{})

		if _, err := c.CurrentUser(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected 2 attempts, got %d", calls)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	for name, tc := range map[string]struct {
		header string
		want   time.Duration
	}{
		"Seconds":  {"3", 3 * time.Second},
		"Missing":  {"", 0},
		"Garbage":  {"soon", 0},
		"Negative": {"-1", 0},
	} {
		t.Run(name, func(t *testing.T) {
			h := make(http.Header)
			if tc.header != "" {
				h.Set("Retry-After", tc.header)
			}
			if got := parseRetryAfter(h); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
