// Package health provides the status type reported by transport health
// probes and consumed by the stream reconnection supervisor.
package health

import (
	"regexp"
	"time"
)

// Probe status values.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Pre-compiled regexes for message sanitization. Probe messages frequently
// embed endpoint URLs and credentials that must not leak into logs or
// surfaced errors.
var (
	urlRegex        = regexp.MustCompile(`(?:https?|wss?)://[^\s]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a transport connection as seen by
// a probe.
type Status struct {
	Component string    `json:"component"`
	Healthy   bool      `json:"healthy"`
	Status    string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// IsHealthy returns true if the status is healthy.
func (s Status) IsHealthy() bool {
	return s.Status == StateHealthy
}

// IsDegraded returns true if the status is degraded.
func (s Status) IsDegraded() bool {
	return s.Status == StateDegraded
}

// IsUnhealthy returns true if the status is unhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == StateUnhealthy
}

// Healthy builds a healthy status for a component.
func Healthy(component string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    StateHealthy,
		Message:   "connection healthy",
		Timestamp: time.Now(),
	}
}

// Unhealthy builds an unhealthy status with a sanitized message.
func Unhealthy(component, message string) Status {
	return Status{
		Component: component,
		Status:    StateUnhealthy,
		Message:   sanitizeMessage(message),
		Timestamp: time.Now(),
	}
}

// FromError builds a status from a probe error; a nil error is healthy.
func FromError(component string, err error) Status {
	if err == nil {
		return Healthy(component)
	}
	return Unhealthy(component, err.Error())
}

// sanitizeMessage removes endpoint URLs and credential fragments from a
// probe message before it is stored or logged.
func sanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	return msg
}
