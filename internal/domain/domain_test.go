package domain

import "testing"

func TestSummarizableRole(t *testing.T) {
	for _, role := range []string{RoleUser, RoleAssistant, RoleSystem} {
		if !SummarizableRole(role) {
			t.Fatalf("role %q should be summarizable", role)
		}
	}
	for _, role := range []string{"tool", "system_event", ""} {
		if SummarizableRole(role) {
			t.Fatalf("role %q should not be summarizable", role)
		}
	}
}

func TestFailedPlaceholderTitle(t *testing.T) {
	if FailedPlaceholderTitle == "" {
		t.Fatal("placeholder title must be non-empty")
	}
}
