package senders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"billing-reminder-backend/internal/models"

	"github.com/rs/zerolog"
)

const maxErrorBody = 512

// WPPConnectConfig points at a WPPConnect server session.
type WPPConnectConfig struct {
	BaseURL string
	Session string
	Token   string
	Timeout time.Duration
}

// WPPConnectSender delivers WhatsApp text messages through the WPPConnect REST API.
type WPPConnectSender struct {
	cfg    WPPConnectConfig
	client *http.Client
	logger zerolog.Logger
}

func NewWPPConnectSender(cfg WPPConnectConfig, logger zerolog.Logger) *WPPConnectSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WPPConnectSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// WithHTTPClient swaps the client, mostly for httptest servers.
func (s *WPPConnectSender) WithHTTPClient(c *http.Client) *WPPConnectSender {
	if c != nil {
		s.client = c
	}
	return s
}

type wppSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
	IsGroup bool   `json:"isGroup"`
}

type wppSendResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
	Message  string          `json:"message"`
}

func (s *WPPConnectSender) Send(ctx context.Context, msg Outgoing) (Result, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Result{}, ErrNoRecipient
	}
	start := time.Now()

	body, err := json.Marshal(wppSendRequest{Phone: msg.To, Message: msg.Body})
	if err != nil {
		return Result{}, fmt.Errorf("wppconnect: marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/api/%s/send-message", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Session)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("wppconnect: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error().Err(err).Str("to", msg.To).Msg("wppconnect http error")
		return Result{}, fmt.Errorf("wppconnect: http error: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	log := s.logger.With().
		Str("to", msg.To).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Logger()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("response", truncate(string(raw))).Msg("wppconnect rejected message")
		return Result{
			Success: false,
			Status:  models.DeliveryFailed,
			Error:   fmt.Sprintf("wppconnect status %d: %s", resp.StatusCode, truncate(string(raw))),
			Meta:    map[string]string{"status_code": fmt.Sprint(resp.StatusCode)},
		}, nil
	}

	var parsed wppSendResponse
	_ = json.Unmarshal(raw, &parsed)
	if parsed.Status != "" && !strings.EqualFold(parsed.Status, "success") {
		log.Warn().Str("api_status", parsed.Status).Msg("wppconnect reported failure")
		return Result{
			Success: false,
			Status:  models.DeliveryFailed,
			Error:   firstNonEmpty(parsed.Message, "wppconnect status "+parsed.Status),
		}, nil
	}

	id := extractMessageID(parsed.Response)
	log.Info().Str("message_id", id).Msg("wppconnect message sent")
	return Result{Success: true, Status: models.DeliverySent, MessageID: id}, nil
}

// extractMessageID reads "id" from either an object or the first element of an array.
func extractMessageID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	type withID struct {
		ID any `json:"id"`
	}
	var one withID
	if err := json.Unmarshal(raw, &one); err == nil && one.ID != nil {
		return stringify(one.ID)
	}
	var many []withID
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].ID != nil {
		return stringify(many[0].ID)
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["_serialized"].(string); ok {
			return s
		}
	}
	return fmt.Sprint(v)
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
