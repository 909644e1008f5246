package senders

import (
	"fmt"
	"time"

	"billing-reminder-backend/internal/config"
	"billing-reminder-backend/internal/models"

	"github.com/rs/zerolog"
)

// Build wires the senders selected by cfg.
func Build(cfg config.AppConfig, logger zerolog.Logger) (Set, error) {
	mockOpts := []MockOption{
		WithLatency(cfg.MockLatency),
		WithFailureRate(cfg.MockFailureRate),
	}
	if cfg.MockScenario != "" {
		mockOpts = append(mockOpts, WithScenario(Scenario(cfg.MockScenario)))
	}

	var set Set
	switch cfg.WhatsAppDriver {
	case "", "mock":
		set.WhatsApp = NewMockSender(models.ChannelWhatsApp, logger.With().Str("sender", "whatsapp-mock").Logger(), mockOpts...)
	case "wppconnect":
		set.WhatsApp = NewWPPConnectSender(WPPConnectConfig{
			BaseURL: cfg.WPPConnectURL,
			Session: cfg.WPPConnectSession,
			Token:   cfg.WPPConnectToken,
			Timeout: 15 * time.Second,
		}, logger.With().Str("sender", "wppconnect").Logger())
	default:
		return Set{}, fmt.Errorf("%w: whatsapp %q", ErrUnsupportedDriver, cfg.WhatsAppDriver)
	}

	switch cfg.EmailDriver {
	case "", "mock":
		set.Email = NewMockSender(models.ChannelEmail, logger.With().Str("sender", "email-mock").Logger(), mockOpts...)
	case "smtp":
		set.Email = NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}, logger.With().Str("sender", "smtp").Logger())
	default:
		return Set{}, fmt.Errorf("%w: email %q", ErrUnsupportedDriver, cfg.EmailDriver)
	}
	return set, nil
}
