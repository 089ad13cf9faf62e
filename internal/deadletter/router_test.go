package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
	"github.com/kursadbilgin/notify-pipeline/internal/queue"
)

type fakePublisher struct {
	failures int
	calls    []publishCall
}

type publishCall struct {
	queueName string
	env       queue.DeadLetterEnvelope
}

func (p *fakePublisher) PublishDeadLetter(ctx context.Context, queueName string, env queue.DeadLetterEnvelope) error {
	p.calls = append(p.calls, publishCall{queueName: queueName, env: env})
	if len(p.calls) <= p.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

type fakeArchive struct {
	records []*domain.DeadLetterRecord
	err     error
}

func (a *fakeArchive) Create(ctx context.Context, record *domain.DeadLetterRecord) error {
	a.records = append(a.records, record)
	return a.err
}

func newTestRouter(t *testing.T, publisher DeadLetterPublisher, archive Archive) *Router {
	t.Helper()

	router := NewRouter(publisher, archive, zaptest.NewLogger(t))
	router.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	router.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return router
}

func TestRouterRoutesToChannelDLQ(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	archive := &fakeArchive{}
	router := newTestRouter(t, publisher, archive)

	raw := []byte(`{"request_id":"r-9","notification_type":"push"}`)
	router.Route(context.Background(), "r-9", domain.ChannelPush, raw, "device token rejected", 3)

	if len(publisher.calls) != 1 {
		t.Fatalf("publish called %d times, want 1", len(publisher.calls))
	}

	call := publisher.calls[0]
	if call.queueName != "dlq.push" {
		t.Fatalf("queue = %q, want dlq.push", call.queueName)
	}
	if string(call.env.OriginalMessage) != string(raw) {
		t.Fatalf("envelope payload = %s", call.env.OriginalMessage)
	}
	if call.env.Error != "device token rejected" {
		t.Fatalf("envelope error = %q", call.env.Error)
	}
	if call.env.AttemptCount != 3 {
		t.Fatalf("envelope attempt count = %d", call.env.AttemptCount)
	}

	if len(archive.records) != 1 {
		t.Fatalf("archive has %d records, want 1", len(archive.records))
	}
	record := archive.records[0]
	if record.RequestID != "r-9" || record.Channel != domain.ChannelPush || record.Reason != "device token rejected" {
		t.Fatalf("unexpected archive record %+v", record)
	}
	if record.ID == "" {
		t.Fatal("archive record should get an id")
	}
}

func TestRouterRetriesPublish(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{failures: 2}
	router := newTestRouter(t, publisher, &fakeArchive{})

	router.Route(context.Background(), "r-1", domain.ChannelEmail, []byte(`{}`), "template missing", 1)

	if len(publisher.calls) != 3 {
		t.Fatalf("publish called %d times, want 3", len(publisher.calls))
	}
}

func TestRouterArchivesEvenWhenPublishExhausted(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{failures: 10}
	archive := &fakeArchive{}
	router := newTestRouter(t, publisher, archive)

	router.Route(context.Background(), "r-1", domain.ChannelSMS, []byte(`{}`), "boom", 2)

	if len(publisher.calls) != 3 {
		t.Fatalf("publish called %d times, want 3", len(publisher.calls))
	}
	if len(archive.records) != 1 {
		t.Fatalf("archive has %d records, want 1", len(archive.records))
	}
}

func TestRouterParksMalformedPayloadWithoutChannel(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	router := newTestRouter(t, publisher, &fakeArchive{})

	router.Route(context.Background(), "", domain.Channel(""), []byte("not json"), "malformed_message", 0)

	if len(publisher.calls) != 1 {
		t.Fatalf("publish called %d times, want 1", len(publisher.calls))
	}
	if got := publisher.calls[0].queueName; got != "dlq.email" {
		t.Fatalf("queue = %q, want dlq.email", got)
	}
}

func TestRouterSurvivesArchiveFailure(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	archive := &fakeArchive{err: errors.New("database down")}
	router := newTestRouter(t, publisher, archive)

	// Must not panic or propagate; the DLQ copy already exists.
	router.Route(context.Background(), "r-2", domain.ChannelEmail, []byte(`{}`), "boom", 1)

	if len(publisher.calls) != 1 {
		t.Fatalf("publish called %d times, want 1", len(publisher.calls))
	}
}
