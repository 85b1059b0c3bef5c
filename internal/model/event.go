package model

import "time"

// SecurityEvent is an immutable fact submitted by a producer
// (authentication, token transfer, governance or program activity).
type SecurityEvent struct {
	ID                 string            `json:"id"`
	Type               string            `json:"type"`
	Source             string            `json:"source"`
	Severity           Severity          `json:"severity"`
	Description        string            `json:"description"`
	RelatedUserAddress string            `json:"related_user_address,omitempty"`
	RelatedIP          string            `json:"related_ip,omitempty"`
	RelatedSessionID   string            `json:"related_session_id,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Field returns the value of a named event field, falling back to metadata.
// These names are what rule conditions and groupBy refer to.
func (e *SecurityEvent) Field(name string) (string, bool) {
	switch name {
	case "type":
		return e.Type, true
	case "source":
		return e.Source, true
	case "severity":
		return string(e.Severity), true
	case "description":
		return e.Description, true
	case "relatedUserAddress", "related_user_address":
		return e.RelatedUserAddress, e.RelatedUserAddress != ""
	case "relatedIP", "related_ip":
		return e.RelatedIP, e.RelatedIP != ""
	case "relatedSessionID", "related_session_id":
		return e.RelatedSessionID, e.RelatedSessionID != ""
	}
	v, ok := e.Metadata[name]
	return v, ok
}
