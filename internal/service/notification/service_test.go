package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/pkg/messaging"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

func strPtr(s string) *string { return &s }

func confirmation() model.Confirmation {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return model.Confirmation{
		ReferenceID: "RDV-1A2B3C4D",
		Slot: &model.Slot{
			ID:           "s1",
			StartTime:    start,
			EndTime:      start.Add(time.Hour),
			Status:       model.SlotStatusBooked,
			PatientName:  strPtr("Amina"),
			PatientPhone: strPtr("+212600000000"),
			ReferenceID:  strPtr("RDV-1A2B3C4D"),
		},
	}
}

func casablanca(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func TestWhatsAppGolden(t *testing.T) {
	w := NewWhatsApp("", casablanca(t))
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))

	g.Assert(t, "whatsapp_message", []byte(w.Message(confirmation())))
	g.Assert(t, "whatsapp_link", []byte(w.Link(confirmation())))
}

func TestWhatsAppPhoneNormalized(t *testing.T) {
	w := NewWhatsApp(" +33612345678 ", nil)
	assert.Contains(t, w.Link(confirmation()), "https://wa.me/33612345678?text=")
}

type fakeChannel struct {
	name string
	err  error

	mu     sync.Mutex
	events []SlotClaimed
	ctxErr error
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, event SlotClaimed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.ctxErr = ctx.Err()
	return f.err
}

func TestDispatchFansOutAndCounts(t *testing.T) {
	ok := &fakeChannel{name: "event"}
	broken := &fakeChannel{name: "email", err: errors.New("smtp down")}
	m := metrics.New("slots", nil)
	svc := NewService(NewWhatsApp("", casablanca(t)), nil, []Channel{broken, ok}, WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	svc.Dispatch(ctx, confirmation())
	cancel()
	svc.Wait()

	require.Len(t, ok.events, 1)
	event := ok.events[0]
	assert.Equal(t, "s1", event.SlotID)
	assert.Equal(t, "RDV-1A2B3C4D", event.ReferenceID)
	assert.Equal(t, "Amina", event.PatientName)
	assert.Contains(t, event.WhatsAppURL, "https://wa.me/212753235215")
	assert.Len(t, broken.events, 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsSent.WithLabelValues("event")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.NotificationsFailed.WithLabelValues("email")))
}

func TestDispatchUsesDetachedContext(t *testing.T) {
	ch := &fakeChannel{name: "event"}
	svc := NewService(nil, nil, []Channel{ch})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Dispatch(ctx, confirmation())
	svc.Wait()

	require.Len(t, ch.events, 1)
	assert.NoError(t, ch.ctxErr)
}

func TestDispatchWithoutChannels(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.Dispatch(context.Background(), confirmation())
	svc.Wait()
}

type fakeBroker struct {
	channel string
	message interface{}
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	b.channel, b.message = channel, message
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *fakeBroker) Close() error                                         { return nil }

func TestEventChannelPublishesEnvelope(t *testing.T) {
	b := &fakeBroker{}
	ch := NewEventChannel(b, "")

	require.NoError(t, ch.Send(context.Background(), SlotClaimed{SlotID: "s1", ReferenceID: "RDV-1"}))
	assert.Equal(t, EventSlotClaimed, b.channel)

	msg, ok := b.message.(messaging.Message)
	require.True(t, ok)
	assert.Equal(t, EventSlotClaimed, msg.Type)
	assert.Equal(t, "s1", msg.Payload.(SlotClaimed).SlotID)
}

type fakeMailer struct {
	to, subject, body string
}

func (m *fakeMailer) SendCustom(_ context.Context, to, subject, content string) error {
	m.to, m.subject, m.body = to, subject, content
	return nil
}

func TestEmailChannel(t *testing.T) {
	mailer := &fakeMailer{}
	ch := NewEmailChannel(mailer, "therapist@example.com", casablanca(t))

	svc := NewService(nil, nil, nil)
	require.NoError(t, ch.Send(context.Background(), svc.eventFor(confirmation())))

	assert.Equal(t, "therapist@example.com", mailer.to)
	assert.Equal(t, "Nouveau rendez-vous RDV-1A2B3C4D le 01/06/2025 11:00", mailer.subject)
	assert.Contains(t, mailer.body, "Nom: Amina")
	assert.Contains(t, mailer.body, "Statut: booked")
}
