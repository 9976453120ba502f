package email

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"confgive/internal/infrastructure/config"
	"confgive/internal/shared/logger"
)

// Sender sends the donation confirmation email over SMTP. The dialer and
// template are constructed once at startup; there is no lazy first-use
// initialization.
type Sender struct {
	cfg    config.EmailConfig
	dialer *gomail.Dialer
	tmpl   *Template
	log    logger.Interface
}

func NewSender(cfg config.EmailConfig, log logger.Interface) (*Sender, error) {
	log = log.Named("email")

	tmpl, err := LoadTemplate(cfg.TemplatePath)
	if err != nil {
		if tmpl == nil {
			return nil, err
		}
		log.Warnw("email template unavailable, using fallback copy", "error", err)
	}

	return &Sender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		tmpl:   tmpl,
		log:    log,
	}, nil
}

// SendGivingSuccess sends the confirmation email for an authorized charge.
// Callers dispatch it fire-and-forget; an error here is logged and discarded
// and never affects the donation record's durability.
func (s *Sender) SendGivingSuccess(recipient string, tctx TemplateContext) error {
	if recipient == "" {
		s.log.Warnw("missing recipient email, skipping send")
		return nil
	}
	if !s.cfg.Ready() {
		s.log.Warnw("email credentials not configured, skipping send")
		return nil
	}

	body, err := s.tmpl.Render(tctx)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.FromAddress, s.cfg.FromName))
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", s.tmpl.Subject())
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send confirmation email: %w", err)
	}

	s.log.Infow("donation confirmation email sent", "recipient", recipient)
	return nil
}
