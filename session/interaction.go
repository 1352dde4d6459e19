package session

import (
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/models"
)

// Interaction kinds reported by the beacon.
const (
	InteractionCall  = "call"
	InteractionEmail = "email"
	InteractionForm  = "form"
)

// DefaultFormTitle names a form that reports no title.
const DefaultFormTitle = "Form title unavailable"

// Interaction is a contact click or a form submission on the page.
type Interaction struct {
	Kind string

	// Href is the tel: or mailto: link for calls and emails.
	Href string

	FormTitle string
}

// Phone numbers are sent without delimiters so that one number written
// several ways counts once.
var phoneDelimiters = strings.NewReplacer(" ", "", ".", "", "-", "", ",", "")

// Interact records one interaction and emits its event through the session
// trackers:
//   - call: Calling, action the number without delimiters, label the title.
//   - email: Contact, action the address, label the page path. Only the
//     first email click of a session is sent.
//   - form: FormSubmission, action the form title, label the page title.
func (m *Manager) Interact(id string, in Interaction) error {
	var (
		event  string
		fields analytics.Fields
	)
	switch in.Kind {
	case InteractionCall:
		if !strings.HasPrefix(in.Href, "tel:") {
			return models.NewTrackError(models.ErrCodeInvalidInput, "call needs a tel: href", nil)
		}
		event = analytics.CategoryCalling
		fields = analytics.Fields{Action: phoneDelimiters.Replace(in.Href)}
	case InteractionEmail:
		if !strings.HasPrefix(in.Href, "mailto:") {
			return models.NewTrackError(models.ErrCodeInvalidInput, "email needs a mailto: href", nil)
		}
		event = analytics.CategoryContact
		fields = analytics.Fields{Action: in.Href}
	case InteractionForm:
		title := strings.TrimSpace(in.FormTitle)
		if title == "" {
			title = DefaultFormTitle
		}
		event = analytics.CategoryFormSubmission
		fields = analytics.Fields{Action: title}
	default:
		return models.NewTrackError(models.ErrCodeInvalidInput, "unknown interaction kind: "+in.Kind, nil)
	}
	fields.Category = event

	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if in.Kind == InteractionEmail {
		fields.Label = pagePath(s.URL)
	}

	if !s.interacted(m.clk.Now(), in.Kind == InteractionEmail) {
		m.logger.Debug("session: repeated email click ignored", "session_id", id, "href", in.Href)
		return nil
	}
	if !s.view.Emit(event, fields) {
		return models.NewTrackError(models.ErrCodeSessionNotFound, "session closed: "+id, nil)
	}
	return nil
}

// interacted counts one interaction. It reports false for an email click
// after the first.
func (s *Session) interacted(now time.Time, email bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	s.interactions++
	if email {
		if s.emailed {
			return false
		}
		s.emailed = true
	}
	return true
}

func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
