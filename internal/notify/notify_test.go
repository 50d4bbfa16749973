package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDispatcher_DeliversAsync(t *testing.T) {
	fake := &fakeNotifier{}
	d := NewDispatcher(fake, slog.New(slog.DiscardHandler), nil)
	defer d.Close()

	d.Dispatch(context.Background(), Message{To: "owner@example.com", Template: TemplateConsentRequested})

	require.Eventually(t, func() bool { return fake.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_FailureNeverPropagates(t *testing.T) {
	fake := &fakeNotifier{err: errors.New("smtp down")}
	var mu sync.Mutex
	outcomes := map[bool]int{}
	d := NewDispatcher(fake, slog.New(slog.DiscardHandler), func(_ string, ok bool) {
		mu.Lock()
		outcomes[ok]++
		mu.Unlock()
	})

	d.Dispatch(context.Background(), Message{To: "x@example.com", Template: TemplateConsentApproved})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, outcomes[false])
	assert.Equal(t, 0, outcomes[true])
}

func TestDispatcher_DrainsOnClose(t *testing.T) {
	fake := &fakeNotifier{}
	d := NewDispatcher(fake, slog.New(slog.DiscardHandler), nil)

	for range 20 {
		d.Dispatch(context.Background(), Message{To: "x@example.com", Template: TemplateConsentRevoked})
	}
	d.Close()

	assert.Equal(t, 20, fake.count())
}

func TestLogNotifier_RendersKnownTemplates(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.DiscardHandler))
	for _, template := range []string{
		TemplateConsentRequested, TemplateConsentApproved, TemplateConsentRejected,
		TemplateConsentRevoked, TemplatePasswordOTP,
	} {
		require.NoError(t, n.Send(context.Background(), Message{
			To:       "user@example.com",
			Template: template,
			Data:     map[string]any{"otp": "123456"},
		}))
	}
}
