package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

func pushDelivery() Delivery {
	return Delivery{
		RequestID: "r1",
		Target:    domain.Target{Channel: domain.ChannelPush, Address: "device-token-1234567890"},
		Content:   domain.Content{Subject: "Welcome", Body: "Hello Ada"},
	}
}

func TestFCMProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody fcmRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"multicast_id":123,"success":1,"failure":0,"results":[{"message_id":"fcm-msg-1"}]}`))
	}))
	defer server.Close()

	p, err := NewFCMProvider(server.URL, "secret-key")
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), pushDelivery())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.MessageID != "fcm-msg-1" {
		t.Fatalf("MessageID = %q, want fcm-msg-1", resp.MessageID)
	}
	if gotAuth != "key=secret-key" {
		t.Fatalf("Authorization = %q, want key=secret-key", gotAuth)
	}
	if gotBody.To != "device-token-1234567890" {
		t.Fatalf("request.to = %q, want the device token", gotBody.To)
	}
	if gotBody.Notification.Body != "Hello Ada" {
		t.Fatalf("notification body = %q, want Hello Ada", gotBody.Notification.Body)
	}
}

func TestFCMProviderUnregisteredTokenIsTerminal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	}))
	defer server.Close()

	p, err := NewFCMProvider(server.URL, "secret-key")
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	_, err = p.Send(context.Background(), pushDelivery())
	if err == nil {
		t.Fatal("Send() should fail for an unregistered token")
	}

	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("Send() error = %T, want *domain.RemoteError", err)
	}
	if remoteErr.Transient {
		t.Fatal("unregistered token must be classified terminal")
	}
}

func TestFCMProviderStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "unauthorized is permanent", statusCode: http.StatusUnauthorized, wantTransient: false},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			p, err := NewFCMProvider(server.URL, "secret-key")
			if err != nil {
				t.Fatalf("NewFCMProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), pushDelivery())
			if err == nil {
				t.Fatal("Send() should fail")
			}
			if got := domain.IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
		})
	}
}

func TestFCMProviderMissingTokenIsTerminal(t *testing.T) {
	t.Parallel()

	p, err := NewFCMProvider("https://fcm.example.com/send", "secret-key")
	if err != nil {
		t.Fatalf("NewFCMProvider() error = %v", err)
	}

	delivery := pushDelivery()
	delivery.Target.Address = " "

	_, err = p.Send(context.Background(), delivery)
	if err == nil {
		t.Fatal("Send() should fail for a missing token")
	}
	if domain.IsTransient(err) {
		t.Fatal("missing token must be terminal")
	}
}

func TestNewFCMProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewFCMProvider("", "key"); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewFCMProvider("https://fcm.example.com", ""); err == nil {
		t.Fatal("expected error for empty server key")
	}
}
