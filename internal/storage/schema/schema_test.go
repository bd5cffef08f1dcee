package schema

import "testing"

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]interface{}
		wantErr bool
	}{
		{"nil is valid", nil, false},
		{"empty is valid", map[string]interface{}{}, false},
		{"valid fields", map[string]interface{}{
			"maxConcurrentJobs": 5,
			"reviewPolicy":      "strict",
		}, false},
		{"unknown field is allowed", map[string]interface{}{"extra": "ok"}, false},
		{"maxConcurrentJobs below minimum", map[string]interface{}{"maxConcurrentJobs": 0}, true},
		{"reviewPolicy not in enum", map[string]interface{}{"reviewPolicy": "loose"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSettings(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSettings(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePolicyOverrides(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]interface{}
		wantErr bool
	}{
		{"nil is valid", nil, false},
		{"valid fields", map[string]interface{}{"maxReviewAttempts": 3, "requireHumanApproval": true}, false},
		{"maxReviewAttempts above maximum", map[string]interface{}{"maxReviewAttempts": 11}, true},
		{"maxReviewAttempts below minimum", map[string]interface{}{"maxReviewAttempts": 0}, true},
		{"wrong type", map[string]interface{}{"requireHumanApproval": "yes"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicyOverrides(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePolicyOverrides(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateJobMetadata(t *testing.T) {
	tests := []struct {
		name    string
		input   map[string]interface{}
		wantErr bool
	}{
		{"nil is valid", nil, false},
		{"valid failedAt", map[string]interface{}{"failedAt": "PLANNING", "errorDetails": "boom"}, false},
		{"valid attempts", map[string]interface{}{"attempts": 2}, false},
		{"negative attempts", map[string]interface{}{"attempts": -1}, true},
		{"unrecognized failedAt", map[string]interface{}{"failedAt": "BOGUS"}, true},
		{"errorDetails wrong type", map[string]interface{}{"errorDetails": 123}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobMetadata(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJobMetadata(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				var vErr *ValidationError
				if ve, ok := err.(*ValidationError); ok {
					vErr = ve
				}
				if vErr == nil {
					t.Errorf("expected *ValidationError, got %T", err)
				} else if len(vErr.Details) == 0 {
					t.Error("expected at least one validation detail")
				}
			}
		})
	}
}
