package senders

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"billing-reminder-backend/internal/models"

	"github.com/rs/zerolog"
)

// Scenario forces the behaviour of a MockSender.
type Scenario string

const (
	ScenarioRandom  Scenario = "random"
	ScenarioSuccess Scenario = "success"
	ScenarioFailure Scenario = "failure"
	ScenarioError   Scenario = "error"
)

type MockOption func(*MockSender)

func WithScenario(s Scenario) MockOption {
	return func(m *MockSender) {
		m.scenario = s
	}
}

func WithLatency(d time.Duration) MockOption {
	return func(m *MockSender) {
		if d < 0 {
			d = 0
		}
		m.latency = d
	}
}

// WithFailureRate sets the share of random sends reported as failed.
func WithFailureRate(rate float64) MockOption {
	return func(m *MockSender) {
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		m.failureRate = rate
	}
}

func WithClock(now func() time.Time) MockOption {
	return func(m *MockSender) {
		if now != nil {
			m.now = now
		}
	}
}

func WithRandSource(src rand.Source) MockOption {
	return func(m *MockSender) {
		if src != nil {
			m.rnd = rand.New(src) // #nosec G404
		}
	}
}

// WithRecording keeps every sent message for Calls. Off by default so a
// long-running server does not accumulate them.
func WithRecording() MockOption {
	return func(m *MockSender) {
		m.record = true
	}
}

// MockSender simulates a channel: it waits, then succeeds most of the time.
type MockSender struct {
	channel     models.Channel
	logger      zerolog.Logger
	scenario    Scenario
	latency     time.Duration
	failureRate float64
	now         func() time.Time
	record      bool

	mu    sync.Mutex
	rnd   *rand.Rand
	calls []Outgoing
}

func NewMockSender(channel models.Channel, logger zerolog.Logger, opts ...MockOption) *MockSender {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	m := &MockSender{
		channel:     channel,
		logger:      logger,
		scenario:    ScenarioRandom,
		latency:     time.Second,
		failureRate: 0.1,
		now:         time.Now,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *MockSender) Send(ctx context.Context, msg Outgoing) (Result, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Result{}, ErrNoRecipient
	}
	if m.record {
		m.mu.Lock()
		m.calls = append(m.calls, msg)
		m.mu.Unlock()
	}

	if m.latency > 0 {
		timer := time.NewTimer(m.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	scenario := m.scenario
	if scenario == ScenarioRandom {
		scenario = ScenarioSuccess
		m.mu.Lock()
		if m.rnd.Float64() < m.failureRate {
			scenario = ScenarioFailure
		}
		m.mu.Unlock()
	}

	m.logger.Debug().
		Str("channel", string(m.channel)).
		Str("to", msg.To).
		Str("scenario", string(scenario)).
		Msg("mock send")

	switch scenario {
	case ScenarioSuccess:
		return Result{
			Success:   true,
			Status:    models.DeliverySent,
			MessageID: fmt.Sprintf("%s_%d", m.prefix(), m.now().UnixNano()),
		}, nil
	case ScenarioFailure:
		return Result{
			Success: false,
			Status:  models.DeliveryFailed,
			Error:   fmt.Sprintf("failed to send %s", m.noun()),
		}, nil
	case ScenarioError:
		return Result{}, errors.New("mock " + string(m.channel) + ": connection reset")
	default:
		return Result{}, fmt.Errorf("mock %s: unknown scenario %q", m.channel, scenario)
	}
}

// Calls returns what was sent so far, in order. Empty unless WithRecording is set.
func (m *MockSender) Calls() []Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Outgoing, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockSender) prefix() string {
	if m.channel == models.ChannelEmail {
		return "email"
	}
	return "msg"
}

func (m *MockSender) noun() string {
	if m.channel == models.ChannelEmail {
		return "email"
	}
	return "message"
}
