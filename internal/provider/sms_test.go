package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

func smsDelivery() Delivery {
	return Delivery{
		RequestID: "r1",
		Target:    domain.Target{Channel: domain.ChannelSMS, Address: "+905551112233"},
		Content:   domain.Content{Body: "hello"},
	}
}

func TestSMSProviderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody smsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-ID", "sms-msg-1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	p, err := NewSMSProvider(server.URL)
	if err != nil {
		t.Fatalf("NewSMSProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), smsDelivery())
	if err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if resp.MessageID != "sms-msg-1" {
		t.Fatalf("MessageID = %q, want sms-msg-1", resp.MessageID)
	}
	if gotBody.To != "+905551112233" {
		t.Fatalf("request.to = %q, want +905551112233", gotBody.To)
	}
	if gotBody.Message != "hello" {
		t.Fatalf("request.message = %q, want hello", gotBody.Message)
	}
}

func TestSMSProviderTruncatesLongMessages(t *testing.T) {
	t.Parallel()

	var gotBody smsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewSMSProvider(server.URL)
	if err != nil {
		t.Fatalf("NewSMSProvider() error = %v", err)
	}

	delivery := smsDelivery()
	delivery.Content.Body = strings.Repeat("x", 400)

	if _, err := p.Send(context.Background(), delivery); err != nil {
		t.Fatalf("Send() unexpected error: %v", err)
	}
	if len(gotBody.Message) != maxSMSLength {
		t.Fatalf("message length = %d, want %d", len(gotBody.Message), maxSMSLength)
	}
}

func TestSMSProviderStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "not found is permanent", statusCode: http.StatusNotFound, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			p, err := NewSMSProvider(server.URL)
			if err != nil {
				t.Fatalf("NewSMSProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), smsDelivery())
			if err == nil {
				t.Fatal("Send() should fail")
			}
			if got := domain.IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
		})
	}
}

func TestNewSMSProviderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSMSProvider(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewSMSProvider("not a url"); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}
