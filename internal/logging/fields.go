package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService     = "service"
	FieldOrgID       = "organization_id"
	FieldProvider    = "provider"
	FieldIntegration = "integration_id"
	FieldProject     = "project_id"
	FieldEventID     = "event_id"
	FieldDeliveryID  = "delivery_id"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldError       = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// OrgID returns a slog attribute for the organization ID.
func OrgID(id string) slog.Attr {
	return slog.String(FieldOrgID, id)
}

// ProviderName returns a slog attribute for the provider name.
func ProviderName(p string) slog.Attr {
	return slog.String(FieldProvider, p)
}

// IntegrationID returns a slog attribute for the integration ID.
func IntegrationID(id string) slog.Attr {
	return slog.String(FieldIntegration, id)
}

// ProjectID returns a slog attribute for the project ID.
func ProjectID(id string) slog.Attr {
	return slog.String(FieldProject, id)
}

// EventID returns a slog attribute for a canonical event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// DeliveryID returns a slog attribute for a webhook delivery ID.
func DeliveryID(id string) slog.Attr {
	return slog.String(FieldDeliveryID, id)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
