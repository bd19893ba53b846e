package workflow

import "context"

// Health summarizes the readiness of one collaborator.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by collaborators that can report readiness,
// such as a recognizer whose binary may be missing.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
