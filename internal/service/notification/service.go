package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/slot-booking/internal/email"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/pkg/logger"
	"github.com/jwalitptl/slot-booking/pkg/messaging"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

const (
	EventSlotClaimed = "slot.claimed"

	channelEvent = "event"
	channelEmail = "email"

	defaultTimeout = 10 * time.Second
)

// SlotClaimed is the payload published after a successful claim.
type SlotClaimed struct {
	SlotID       string           `json:"slot_id"`
	ReferenceID  string           `json:"reference_id"`
	Status       model.SlotStatus `json:"status"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	PatientName  string           `json:"patient_name"`
	PatientPhone string           `json:"patient_phone"`
	WhatsAppURL  string           `json:"whatsapp_url"`
}

// Channel delivers one claim notification somewhere.
type Channel interface {
	Name() string
	Send(ctx context.Context, event SlotClaimed) error
}

// Service fans confirmations out to its channels in the background.
type Service struct {
	channels []Channel
	whatsapp *WhatsApp
	log      *logger.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	wg       sync.WaitGroup
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(whatsapp *WhatsApp, log *logger.Logger, channels []Channel, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if whatsapp == nil {
		whatsapp = NewWhatsApp("", nil)
	}
	s := &Service{
		channels: channels,
		whatsapp: whatsapp,
		log:      log.With("notification"),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) WhatsAppLink(conf model.Confirmation) string {
	return s.whatsapp.Link(conf)
}

// Dispatch returns immediately. Delivery runs on a context detached from the
// request, bounded by the service timeout; failures are logged and counted.
func (s *Service) Dispatch(ctx context.Context, conf model.Confirmation) {
	if len(s.channels) == 0 || conf.Slot == nil {
		return
	}
	event := s.eventFor(conf)
	detached := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()

		for _, ch := range s.channels {
			if err := ch.Send(ctx, event); err != nil {
				s.log.Error(err, "notification failed", "channel", ch.Name(), "slot_id", event.SlotID, "reference_id", event.ReferenceID)
				if s.metrics != nil {
					s.metrics.NotificationsFailed.WithLabelValues(ch.Name()).Inc()
				}
				continue
			}
			if s.metrics != nil {
				s.metrics.NotificationsSent.WithLabelValues(ch.Name()).Inc()
			}
		}
	}()
}

// Wait blocks until in-flight dispatches finish. Used on shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) eventFor(conf model.Confirmation) SlotClaimed {
	slot := conf.Slot
	event := SlotClaimed{
		SlotID:      slot.ID,
		ReferenceID: conf.ReferenceID,
		Status:      slot.Status,
		StartTime:   slot.StartTime,
		EndTime:     slot.EndTime,
		WhatsAppURL: s.whatsapp.Link(conf),
	}
	if slot.PatientName != nil {
		event.PatientName = *slot.PatientName
	}
	if slot.PatientPhone != nil {
		event.PatientPhone = *slot.PatientPhone
	}
	return event
}

// EventChannel publishes claims on a broker channel.
type EventChannel struct {
	broker  messaging.Broker
	channel string
}

func NewEventChannel(broker messaging.Broker, channel string) *EventChannel {
	if channel == "" {
		channel = EventSlotClaimed
	}
	return &EventChannel{broker: broker, channel: channel}
}

func (c *EventChannel) Name() string { return channelEvent }

func (c *EventChannel) Send(ctx context.Context, event SlotClaimed) error {
	return c.broker.Publish(ctx, c.channel, messaging.NewMessage(EventSlotClaimed, event))
}

// EmailChannel mails the therapist about each booking.
type EmailChannel struct {
	sender email.Service
	to     string
	loc    *time.Location
}

func NewEmailChannel(sender email.Service, to string, loc *time.Location) *EmailChannel {
	if loc == nil {
		loc = time.UTC
	}
	return &EmailChannel{sender: sender, to: to, loc: loc}
}

func (c *EmailChannel) Name() string { return channelEmail }

func (c *EmailChannel) Send(ctx context.Context, event SlotClaimed) error {
	start := event.StartTime.In(c.loc)
	subject := fmt.Sprintf("Nouveau rendez-vous %s le %s", event.ReferenceID, start.Format("02/01/2006 15:04"))

	var body strings.Builder
	fmt.Fprintf(&body, "Référence: %s\n", event.ReferenceID)
	fmt.Fprintf(&body, "Nom: %s\n", event.PatientName)
	fmt.Fprintf(&body, "Téléphone: %s\n", event.PatientPhone)
	fmt.Fprintf(&body, "Début: %s\n", start.Format("02/01/2006 15:04"))
	fmt.Fprintf(&body, "Fin: %s\n", event.EndTime.In(c.loc).Format("02/01/2006 15:04"))
	fmt.Fprintf(&body, "Statut: %s\n", event.Status)

	return c.sender.SendCustom(ctx, c.to, subject, body.String())
}
