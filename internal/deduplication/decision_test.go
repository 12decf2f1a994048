package deduplication

import (
	"strings"
	"testing"
)

// TestDecisionValidation tests the validation logic for Decision
func TestDecisionValidation(t *testing.T) {
	tests := []struct {
		name        string
		decision    Decision
		threshold   float64
		expectError bool
		errorMsg    string
	}{
		{
			name:      "valid decision",
			decision:  Decision{Duplicate: "b.jpg", Original: "a.jpg", Similarity: 0.97},
			threshold: 0.95,
		},
		{
			name:      "identical",
			decision:  Decision{Duplicate: "b.jpg", Original: "a.jpg", Similarity: 1},
			threshold: 0.95,
		},
		{
			name:        "rounded above one",
			decision:    Decision{Duplicate: "b.jpg", Original: "a.jpg", Similarity: 1.0000001},
			threshold:   0.95,
			expectError: true,
			errorMsg:    "at most 1.0",
		},
		{
			name:        "missing original",
			decision:    Decision{Duplicate: "b.jpg", Similarity: 0.97},
			threshold:   0.95,
			expectError: true,
			errorMsg:    "must both be set",
		},
		{
			name:        "self duplicate",
			decision:    Decision{Duplicate: "a.jpg", Original: "a.jpg", Similarity: 1},
			threshold:   0.95,
			expectError: true,
			errorMsg:    "duplicate of itself",
		},
		{
			name:        "equal to threshold",
			decision:    Decision{Duplicate: "b.jpg", Original: "a.jpg", Similarity: 0.95},
			threshold:   0.95,
			expectError: true,
			errorMsg:    "does not exceed threshold",
		},
		{
			name:        "above one",
			decision:    Decision{Duplicate: "b.jpg", Original: "a.jpg", Similarity: 1.5},
			threshold:   0.95,
			expectError: true,
			errorMsg:    "at most 1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate(tt.threshold)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errorMsg)
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestResultValidation tests the validation logic for Result
func TestResultValidation(t *testing.T) {
	valid := Result{
		Decisions: []Decision{
			{Duplicate: "b", Original: "a", Similarity: 0.99},
			{Duplicate: "c", Original: "a", Similarity: 0.98},
		},
		Stats: Stats{Entries: 3, Comparisons: 3, Duplicates: 2},
	}
	if err := valid.Validate(0.95); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	doubled := Result{
		Decisions: []Decision{
			{Duplicate: "b", Original: "a", Similarity: 0.99},
			{Duplicate: "b", Original: "c", Similarity: 0.98},
		},
		Stats: Stats{Entries: 3, Comparisons: 3, Duplicates: 2},
	}
	if err := doubled.Validate(0.95); err == nil || !strings.Contains(err.Error(), "more than once") {
		t.Errorf("expected double-claim error, got %v", err)
	}

	mismatch := valid
	mismatch.Stats.Duplicates = 5
	if err := mismatch.Validate(0.95); err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Errorf("expected stats mismatch error, got %v", err)
	}

	tooMany := valid
	tooMany.Stats.Comparisons = 4
	if err := tooMany.Validate(0.95); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("expected comparisons error, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Threshold: 0.95, Workers: 4}, false},
		{"threshold one", Config{Threshold: 1.0, Workers: 1}, false},
		{"default has no threshold", DefaultConfig(), true},
		{"threshold zero", Config{Threshold: 0, Workers: 1}, true},
		{"threshold above one", Config{Threshold: 1.01, Workers: 1}, true},
		{"no workers", Config{Threshold: 0.9, Workers: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
