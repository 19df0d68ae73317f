package notifications

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/icheme/portfolio/internal/telemetry/metrics"
	"github.com/icheme/portfolio/internal/telemetry/tracing"
)

const (
	contactNotificationTemplate = "contact_notification"
	autoReplyTemplate           = "auto_reply"

	backgroundSendTimeout = 30 * time.Second
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Contact is a message left through the public contact form.
type Contact struct {
	Name       string
	Email      string
	Message    string
	ReceivedAt time.Time
}

type templateData struct {
	Contact
	SiteURL   string
	OwnerName string
}

// Notifier mails the site owner about new contact messages and sends the sender an auto reply.
type Notifier struct {
	sender         Sender
	adminEmail     string
	siteURL        string
	ownerName      string
	htmlTemplates  *htmltemplate.Template
	textTemplates  *texttemplate.Template
	metricsManager *metrics.Manager
	wg             sync.WaitGroup
}

func NewNotifier(
	sender Sender,
	adminEmail string,
	siteURL string,
	ownerName string,
	metricsManager *metrics.Manager,
) (*Notifier, error) {
	htmlTemplates, err := htmltemplate.ParseFS(templatesFS, "templates/*.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	textTemplates, err := texttemplate.ParseFS(templatesFS, "templates/*.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}

	return &Notifier{
		sender:         sender,
		adminEmail:     adminEmail,
		siteURL:        siteURL,
		ownerName:      ownerName,
		htmlTemplates:  htmlTemplates,
		textTemplates:  textTemplates,
		metricsManager: metricsManager,
	}, nil
}

func (n *Notifier) render(name string, data templateData) (Email, error) {
	var html, text bytes.Buffer
	if err := n.htmlTemplates.ExecuteTemplate(&html, name+".html.tmpl", data); err != nil {
		return Email{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := n.textTemplates.ExecuteTemplate(&text, name+".txt.tmpl", data); err != nil {
		return Email{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Email{
		HTML: html.String(),
		Text: text.String(),
	}, nil
}

// ContactReceived sends the admin notification (when an admin email is configured)
// and the auto reply. Both are attempted; the errors are combined.
func (n *Notifier) ContactReceived(ctx context.Context, contact Contact) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "notifier.contactReceived")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if contact.ReceivedAt.IsZero() {
		contact.ReceivedAt = time.Now()
	}
	data := templateData{
		Contact:   contact,
		SiteURL:   n.siteURL,
		OwnerName: n.ownerName,
	}

	if n.adminEmail != "" {
		err = multierr.Append(err, n.send(ctx, contactNotificationTemplate, data, func(email *Email) {
			email.To = n.adminEmail
			email.ReplyTo = contact.Email
			email.Subject = "New Contact Form Submission from " + contact.Name
		}))
	}
	err = multierr.Append(err, n.send(ctx, autoReplyTemplate, data, func(email *Email) {
		email.To = contact.Email
		email.Subject = "Thank you for contacting me!"
	}))

	return err
}

func (n *Notifier) send(ctx context.Context, templateName string, data templateData, address func(*Email)) error {
	email, err := n.render(templateName, data)
	if err == nil {
		address(&email)
		err = n.sender.Send(ctx, email)
	}
	if err != nil {
		n.metricsManager.CounterEmailFailures.Inc()
		return fmt.Errorf("%s: %w", templateName, err)
	}
	return nil
}

// NotifyInBackground runs ContactReceived detached from the request; failures are only logged.
func (n *Notifier) NotifyInBackground(contact Contact) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundSendTimeout)
		defer cancel()

		if err := n.ContactReceived(ctx, contact); err != nil {
			log.Errorf("contact message emails: %s", err)
			return
		}
		log.Tracef("contact message emails sent for %s", contact.Email)
	}()
}

// Wait blocks until all background notifications are done.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
