package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

func TestHTTPResolverResolveSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/u-42/targets/push" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"target":"device-token-abc"}}`)
	}))
	defer server.Close()

	res, err := NewHTTPResolver(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPResolver() error = %v", err)
	}

	target, err := res.Resolve(context.Background(), "u-42", domain.ChannelPush)
	if err != nil {
		t.Fatalf("Resolve() unexpected error: %v", err)
	}

	if target.Address != "device-token-abc" {
		t.Fatalf("target.Address = %q, want device-token-abc", target.Address)
	}
	if target.Channel != domain.ChannelPush {
		t.Fatalf("target.Channel = %q, want %q", target.Channel, domain.ChannelPush)
	}
}

func TestHTTPResolverMissingTargetIsTerminal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "empty target",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"data":{"target":""}}`)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tc.handler)
			defer server.Close()

			res, err := NewHTTPResolver(server.URL)
			if err != nil {
				t.Fatalf("NewHTTPResolver() error = %v", err)
			}

			_, err = res.Resolve(context.Background(), "u-42", domain.ChannelEmail)
			if err == nil {
				t.Fatal("Resolve() should fail")
			}
			if domain.IsTransient(err) {
				t.Fatalf("error should be terminal, got %v", err)
			}
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("error should wrap ErrNotFound, got %v", err)
			}
		})
	}
}

func TestHTTPResolverStatusClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "server error", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway", statusCode: http.StatusBadGateway, wantTransient: true},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "forbidden", statusCode: http.StatusForbidden, wantTransient: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			res, err := NewHTTPResolver(server.URL)
			if err != nil {
				t.Fatalf("NewHTTPResolver() error = %v", err)
			}

			_, err = res.Resolve(context.Background(), "u-1", domain.ChannelSMS)
			if err == nil {
				t.Fatal("Resolve() should fail")
			}
			if got := domain.IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient(%v) = %t, want %t", err, got, tc.wantTransient)
			}

			var remoteErr *domain.RemoteError
			if !errors.As(err, &remoteErr) {
				t.Fatalf("error should be a RemoteError, got %T", err)
			}
			if remoteErr.StatusCode != tc.statusCode {
				t.Fatalf("StatusCode = %d, want %d", remoteErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestHTTPResolverConnectionFailureIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	res, err := NewHTTPResolver(server.URL)
	if err != nil {
		t.Fatalf("NewHTTPResolver() error = %v", err)
	}

	_, err = res.Resolve(context.Background(), "u-1", domain.ChannelEmail)
	if !domain.IsTransient(err) {
		t.Fatalf("connection failure should be transient, got %v", err)
	}
}

func TestHTTPResolverRejectsBadInput(t *testing.T) {
	t.Parallel()

	res, err := NewHTTPResolver("https://users.internal")
	if err != nil {
		t.Fatalf("NewHTTPResolver() error = %v", err)
	}

	if _, err := res.Resolve(context.Background(), "", domain.ChannelEmail); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty user id: error = %v, want ErrValidation", err)
	}
	if _, err := res.Resolve(context.Background(), "u-1", domain.Channel("FAX")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("invalid channel: error = %v, want ErrValidation", err)
	}
}

func TestNewHTTPResolverRequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPResolver("   "); err == nil {
		t.Fatal("NewHTTPResolver() should reject an empty base url")
	}
}
