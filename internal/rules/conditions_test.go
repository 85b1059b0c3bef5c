package rules

import (
	"testing"
	"time"

	"credwatch/internal/model"
)

func TestEvaluateCondition(t *testing.T) {
	event := &model.SecurityEvent{
		Type:               "token_transfer",
		Source:             "governance",
		Severity:           model.SeverityHigh,
		Description:        "large transfer to unknown address",
		RelatedUserAddress: "0xabc",
		Timestamp:          time.Now(),
		Metadata: map[string]string{
			"amount": "15000.5",
			"region": "eu-west",
		},
	}

	tests := []struct {
		name      string
		condition model.Condition
		want      bool
	}{
		{"eq match", model.Condition{Field: "source", Operator: "eq", Value: "governance"}, true},
		{"eq symbol", model.Condition{Field: "source", Operator: "==", Value: "governance"}, true},
		{"eq mismatch", model.Condition{Field: "source", Operator: "eq", Value: "auth"}, false},
		{"ne", model.Condition{Field: "type", Operator: "ne", Value: "auth_failure"}, true},
		{"gt on metadata", model.Condition{Field: "amount", Operator: "gt", Value: "10000"}, true},
		{"gt not exceeded", model.Condition{Field: "amount", Operator: "gt", Value: "20000"}, false},
		{"gte boundary", model.Condition{Field: "amount", Operator: "gte", Value: "15000.5"}, true},
		{"lt", model.Condition{Field: "amount", Operator: "lt", Value: "20000"}, true},
		{"lte boundary", model.Condition{Field: "amount", Operator: "lte", Value: "15000.5"}, true},
		{"numeric on non-number", model.Condition{Field: "region", Operator: "gt", Value: "10"}, false},
		{"contains", model.Condition{Field: "description", Operator: "contains", Value: "unknown address"}, true},
		{"contains miss", model.Condition{Field: "description", Operator: "contains", Value: "withdrawal"}, false},
		{"in", model.Condition{Field: "region", Operator: "in", Value: "us-east, eu-west, ap-south"}, true},
		{"in miss", model.Condition{Field: "region", Operator: "in", Value: "us-east, ap-south"}, false},
		{"severity field", model.Condition{Field: "severity", Operator: "eq", Value: "high"}, true},
		{"address alias", model.Condition{Field: "related_user_address", Operator: "eq", Value: "0xabc"}, true},
		{"absent field", model.Condition{Field: "related_ip", Operator: "eq", Value: "10.0.0.1"}, false},
		{"absent metadata", model.Condition{Field: "missing", Operator: "ne", Value: "anything"}, false},
		{"unknown operator", model.Condition{Field: "source", Operator: "matches", Value: "governance"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := evaluateCondition(tt.condition, event); got != tt.want {
				t.Errorf("evaluateCondition(%+v) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsAll(t *testing.T) {
	event := &model.SecurityEvent{
		Type:     "secret_access",
		Source:   "vault",
		Severity: model.SeverityMedium,
		Metadata: map[string]string{"privileged": "true"},
	}

	all := []model.Condition{
		{Field: "source", Operator: "eq", Value: "vault"},
		{Field: "privileged", Operator: "eq", Value: "true"},
	}
	if !evaluateConditions(all, event) {
		t.Error("all conditions hold, want true")
	}

	mixed := append(all, model.Condition{Field: "severity", Operator: "eq", Value: "critical"})
	if evaluateConditions(mixed, event) {
		t.Error("one condition fails, want false")
	}

	if !evaluateConditions(nil, event) {
		t.Error("empty condition list must pass")
	}
}
