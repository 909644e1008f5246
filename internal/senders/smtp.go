package senders

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"billing-reminder-backend/internal/models"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// SMTPSender delivers plain-text notices. Port 465 uses implicit TLS,
// any other port negotiates STARTTLS when the server offers it.
type SMTPSender struct {
	cfg    SMTPConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewSMTPSender(cfg SMTPConfig, logger zerolog.Logger) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg, logger: logger, now: time.Now}
}

func (s *SMTPSender) Send(ctx context.Context, msg Outgoing) (Result, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Result{}, ErrNoRecipient
	}
	messageID := uuid.NewString()
	raw, err := s.compose(msg, messageID)
	if err != nil {
		return Result{}, err
	}

	if err := s.deliver(ctx, msg.To, raw); err != nil {
		// 5xx replies are permanent rejections of this recipient.
		if code, ok := smtpCode(err); ok && code >= 500 {
			s.logger.Warn().Err(err).Str("to", msg.To).Msg("smtp rejected message")
			return Result{
				Success: false,
				Status:  models.DeliveryFailed,
				Error:   err.Error(),
				Meta:    map[string]string{"smtp_code": fmt.Sprint(code)},
			}, nil
		}
		s.logger.Error().Err(err).Str("to", msg.To).Msg("smtp delivery error")
		return Result{}, fmt.Errorf("smtp: %w", err)
	}
	s.logger.Info().Str("to", msg.To).Str("message_id", messageID).Msg("email sent")
	return Result{Success: true, Status: models.DeliverySent, MessageID: messageID}, nil
}

func (s *SMTPSender) compose(msg Outgoing, messageID string) ([]byte, error) {
	var h mail.Header
	h.SetDate(s.now())
	h.SetSubject(msg.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: s.cfg.FromName, Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.Set("Message-Id", "<"+messageID+"@"+s.cfg.Host+">")
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("smtp: compose: %w", err)
	}
	if _, err := w.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("smtp: compose body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("smtp: compose close: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SMTPSender) deliver(ctx context.Context, to string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if s.cfg.Port == "465" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if s.cfg.Port != "465" {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func smtpCode(err error) (int, bool) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, true
	}
	return 0, false
}
