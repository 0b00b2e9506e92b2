package health

import (
	"regexp"
	"strings"
	"time"
)

// State is a component health level.
type State string

// Health levels, ordered from best to worst.
const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
)

var (
	urlPattern        = regexp.MustCompile(`(?:https?|nats|tls|wss?)://[^\s]+`)
	pathPattern       = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipPattern         = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portPattern       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialPattern = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one component, or of the whole agent when it has components.
type Status struct {
	Component  string    `json:"component"`
	Healthy    bool      `json:"healthy"`
	State      State     `json:"status"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Components []Status  `json:"components,omitempty"`
}

func newStatus(component string, state State, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Healthy returns a healthy status.
func Healthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// Degraded returns a degraded status.
func Degraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Unhealthy returns an unhealthy status whose message is the sanitized error text.
func Unhealthy(component string, err error) Status {
	msg := "unknown error"
	if err != nil {
		msg = Sanitize(err.Error())
	}
	return newStatus(component, StateUnhealthy, msg)
}

// Sanitize strips URLs, paths, IP addresses, ports and credentials from msg.
func Sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	// URLs contain paths, so they go first.
	msg = urlPattern.ReplaceAllString(msg, "[URL]")
	msg = pathPattern.ReplaceAllString(msg, "[PATH]")
	msg = ipPattern.ReplaceAllString(msg, "[IP]")
	msg = portPattern.ReplaceAllString(msg, "[PORT]")
	lower := strings.ToLower(msg)
	for _, word := range []string{"password", "token", "secret", "credential"} {
		if strings.Contains(lower, word) {
			msg = credentialPattern.ReplaceAllString(msg, "[REDACTED]")
			break
		}
	}
	return msg
}

// Aggregate combines component statuses under name.
func Aggregate(name string, components []Status) Status {
	if len(components) == 0 {
		return Healthy(name, "no components registered")
	}

	worst := StateHealthy
	for _, c := range components {
		switch c.State {
		case StateUnhealthy:
			worst = StateUnhealthy
		case StateDegraded:
			if worst == StateHealthy {
				worst = StateDegraded
			}
		}
	}

	var msg string
	switch worst {
	case StateUnhealthy:
		msg = "one or more components are unhealthy"
	case StateDegraded:
		msg = "one or more components are degraded"
	default:
		msg = "all components healthy"
	}

	agg := newStatus(name, worst, msg)
	agg.Components = make([]Status, len(components))
	copy(agg.Components, components)
	return agg
}
