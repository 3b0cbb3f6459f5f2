package notification

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jwalitptl/slot-booking/internal/model"
)

const (
	DefaultWhatsAppPhone = "212753235215"
	DefaultTimezone      = "Africa/Casablanca"
)

// WhatsApp builds the confirmation handoff the client sends to the practice.
type WhatsApp struct {
	phone string
	loc   *time.Location
}

func NewWhatsApp(phone string, loc *time.Location) *WhatsApp {
	phone = strings.TrimLeft(strings.TrimSpace(phone), "+")
	if phone == "" {
		phone = DefaultWhatsAppPhone
	}
	if loc == nil {
		loc = time.UTC
	}
	return &WhatsApp{phone: phone, loc: loc}
}

// Message is the French confirmation text with date and time shown in the
// practice timezone.
func (w *WhatsApp) Message(conf model.Confirmation) string {
	var (
		name  string
		start time.Time
	)
	if conf.Slot != nil {
		start = conf.Slot.StartTime.In(w.loc)
		if conf.Slot.PatientName != nil {
			name = *conf.Slot.PatientName
		}
	}
	return fmt.Sprintf("Bonjour, je souhaite confirmer mon rendez-vous (Ref: %s).\nNom: %s\nDate: %s\nHeure Maroc: %s",
		conf.ReferenceID, name, start.Format("02/01/2006"), start.Format("15:04"))
}

// Link returns the wa.me URL with the message percent-encoded.
func (w *WhatsApp) Link(conf model.Confirmation) string {
	text := strings.ReplaceAll(url.QueryEscape(w.Message(conf)), "+", "%20")
	return "https://wa.me/" + w.phone + "?text=" + text
}
