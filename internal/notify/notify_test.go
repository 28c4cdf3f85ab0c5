package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/claimrecon/internal/claim"
)

func confirmedClaim() claim.Claim {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return claim.Claim{
		ID:                "claim-0001",
		SubjectID:         "u1",
		Kind:              "signup",
		VerificationToken: "tx-1",
		Status:            claim.StatusConfirmed,
		RetryCount:        2,
		CreatedAt:         at.Add(-time.Hour),
		UpdatedAt:         at,
	}
}

func TestPublisher_GoChannel(t *testing.T) {
	p, err := Open(Config{Driver: DriverGoChannel})
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := p.Subscriber().Subscribe(ctx, DefaultTopic)
	require.NoError(t, err)

	// Publish blocks until the message is acked.
	published := make(chan error, 1)
	go func() { published <- p.ClaimConfirmed(ctx, confirmedClaim()) }()

	select {
	case msg := <-messages:
		ev, err := DecodeEvent(msg)
		require.NoError(t, err)
		msg.Ack()

		assert.Equal(t, Event{
			Type:              EventClaimConfirmed,
			ClaimID:           "claim-0001",
			SubjectID:         "u1",
			Kind:              "signup",
			VerificationToken: "tx-1",
			RetryCount:        2,
			ConfirmedAt:       confirmedClaim().UpdatedAt,
		}, ev)
		assert.Equal(t, "claim-0001", middleware.MessageCorrelationID(msg))
		assert.Equal(t, EventClaimConfirmed, msg.Metadata.Get("event_type"))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	require.NoError(t, <-published)
}

func TestPublisher_None(t *testing.T) {
	p, err := Open(Config{Driver: DriverNone, Topic: "custom"})
	require.NoError(t, err)

	assert.NoError(t, p.ClaimConfirmed(context.Background(), confirmedClaim()))
	assert.Nil(t, p.Subscriber())
	assert.Equal(t, "custom", p.Topic())
	assert.NoError(t, p.AuditLog(context.Background(), slog.Default()))

	audit, err := p.SubscribeAudit(context.Background())
	require.NoError(t, err)
	assert.NoError(t, audit.Run(slog.Default()))
	assert.NoError(t, p.Close())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(Config{Driver: DriverAMQP})
	assert.Error(t, err)

	_, err = Open(Config{Driver: "kafka"})
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for the audit goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPublisher_AuditLog(t *testing.T) {
	p, err := Open(Config{Driver: DriverGoChannel})
	require.NoError(t, err)
	defer p.Close()

	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.AuditLog(ctx, logger) }()

	// Publishing before the subscription exists drops the message, so
	// retry until the audit log has seen one.
	require.Eventually(t, func() bool {
		_ = p.ClaimConfirmed(ctx, confirmedClaim())
		return strings.Contains(out.String(), "claim_id=claim-0001")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("audit log did not stop")
	}
}

// A subscription opened before publishing sees every confirmation, and a
// confirmation is logged by the time ClaimConfirmed returns.
func TestSubscribeAudit_NothingLost(t *testing.T) {
	p, err := Open(Config{Driver: DriverGoChannel})
	require.NoError(t, err)
	defer p.Close()

	var out syncBuffer
	logger := slog.New(slog.NewTextHandler(&out, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	audit, err := p.SubscribeAudit(ctx)
	require.NoError(t, err)

	// Published before Run starts consuming.
	published := make(chan error, 1)
	go func() { published <- p.ClaimConfirmed(context.Background(), confirmedClaim()) }()

	done := make(chan error, 1)
	go func() { done <- audit.Run(logger) }()

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish was never acked")
	}
	assert.Contains(t, out.String(), "claim_id=claim-0001")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("audit did not stop")
	}
}
