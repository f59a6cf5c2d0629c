package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"

	"courtbook/internal/events"
	"courtbook/internal/models"
)

// MailSender is the subset of *mail.Client used for delivery.
type MailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	FrontendURL string
}

// Mailer emails clients and branch admins, and sends survey invitations.
type Mailer struct {
	sender      MailSender
	dir         *Directory
	from        string
	frontendURL string
	logger      zerolog.Logger
}

// NewMailer dials nothing; the SMTP connection is opened per send.
func NewMailer(cfg MailConfig, dir *Directory, logger zerolog.Logger) (*Mailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return NewMailerWithSender(client, cfg, dir, logger), nil
}

// NewMailerWithSender builds a Mailer on an existing sender.
func NewMailerWithSender(sender MailSender, cfg MailConfig, dir *Directory, logger zerolog.Logger) *Mailer {
	return &Mailer{
		sender:      sender,
		dir:         dir,
		from:        cfg.From,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		logger:      logger.With().Str("component", "mailer").Logger(),
	}
}

func (m *Mailer) Name() string { return "email" }

// Deliver sends the client email and, for creation events, one email per admin.
func (m *Mailer) Deliver(ctx context.Context, e events.Event) error {
	v := m.dir.View(ctx, e.Booking)

	var msgs []*mail.Msg
	if v.ClientEmail != "" {
		rendered, ok, err := renderClient(v, e.Kind)
		if err != nil {
			return err
		}
		if ok {
			msg, err := m.newMsg(v.ClientEmail, rendered)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
	}

	if e.Kind.ForAdmins() {
		for _, admin := range m.dir.Admins(e.Booking) {
			if admin.Email == "" {
				continue
			}
			rendered, ok, err := renderAdmin(v, e.Kind, admin.Name)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			msg, err := m.newMsg(admin.Email, rendered)
			if err != nil {
				m.logger.Warn().Err(err).Int64("booking_id", e.Booking.ID).Msg("skipping admin recipient")
				continue
			}
			msgs = append(msgs, msg)
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	if err := m.sender.DialAndSendWithContext(ctx, msgs...); err != nil {
		return fmt.Errorf("send %d emails: %w", len(msgs), err)
	}
	return nil
}

// SurveyLink returns the public survey URL for a booking.
func (m *Mailer) SurveyLink(bookingID int64) string {
	return fmt.Sprintf("%s/survey/%d", m.frontendURL, bookingID)
}

// SendSurvey emails the post-stay survey invitation to the booking's contact.
func (m *Mailer) SendSurvey(ctx context.Context, b models.Booking) error {
	v := m.dir.View(ctx, b)
	if v.ClientEmail == "" {
		return errors.New("booking has no contact email")
	}
	rendered, err := renderSurvey(v, m.SurveyLink(b.ID))
	if err != nil {
		return err
	}
	msg, err := m.newMsg(v.ClientEmail, rendered)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send survey: %w", err)
	}
	return nil
}

func (m *Mailer) newMsg(to string, rendered message) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	msg.Subject(rendered.Subject)
	msg.SetBodyString(mail.TypeTextPlain, rendered.Body)
	return msg, nil
}
