package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans an alert out to all configured channels
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{
		alerters: alerters,
	}
}

// Send sends an alert to all configured alerters
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}

	return lastErr
}

// SendCritical is a convenience method for sending critical alerts
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityCritical,
		Metadata: metadata,
	})
}

// SendWarning is a convenience method for sending warning alerts
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityWarning,
		Metadata: metadata,
	})
}

// SendInfo is a convenience method for sending info alerts
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{
		Title:    title,
		Message:  message,
		Severity: SeverityInfo,
		Metadata: metadata,
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := log.Log()

	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	case SeverityInfo:
		event = log.Info()
	}

	if alert.Metadata != nil {
		for key, value := range alert.Metadata {
			event = event.Interface(key, value)
		}
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg(fmt.Sprintf("ALERT: %s", alert.Message))

	return nil
}

// Risk-domain helpers used by the control loop

// AlertRiskEvent sends an alert for a fired risk trigger
func (m *Manager) AlertRiskEvent(ctx context.Context, trigger string, ratio, portfolioValue float64) {
	severity := SeverityWarning
	if trigger != "WARNING" {
		severity = SeverityCritical
	}
	m.Send(ctx, Alert{
		Title:    fmt.Sprintf("Risk trigger: %s", trigger),
		Message:  fmt.Sprintf("%s fired at ratio %.4f with portfolio value %.2f", trigger, ratio, portfolioValue),
		Severity: severity,
		Metadata: map[string]interface{}{
			"trigger":         trigger,
			"ratio":           ratio,
			"portfolio_value": portfolioValue,
		},
	})
}

// AlertLiquidation sends an alert when all positions are force-closed
func (m *Manager) AlertLiquidation(ctx context.Context, closed int, portfolioValue float64) {
	m.SendCritical(ctx, "Portfolio liquidated", fmt.Sprintf(
		"Force-closed %d position(s); portfolio value %.2f", closed, portfolioValue,
	), map[string]interface{}{
		"positions_closed": closed,
		"portfolio_value":  portfolioValue,
	})
}

// AlertShutdown sends an alert when the trader halts permanently
func (m *Manager) AlertShutdown(ctx context.Context, reason string, portfolioValue float64) {
	m.SendCritical(ctx, "Trading halted", fmt.Sprintf(
		"Trader shut down: %s (portfolio value %.2f)", reason, portfolioValue,
	), map[string]interface{}{
		"reason":          reason,
		"portfolio_value": portfolioValue,
	})
}

// AlertSourcesDegraded sends an alert when all price sources are failing
func (m *Manager) AlertSourcesDegraded(ctx context.Context, symbol string) {
	m.SendWarning(ctx, "Price sources degraded", fmt.Sprintf(
		"All sources failed for %s; running on simulated prices", symbol,
	), map[string]interface{}{
		"symbol": symbol,
	})
}
