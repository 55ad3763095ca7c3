package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestValidateCron_Expressions(t *testing.T) {
	valid := []string{
		"* * * * *",
		"*/15 * * * *",
		"0 6 * * *",
		"30 2 1 * *",
		"0 8 * * 1-5",
	}
	for _, expr := range valid {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("ValidateCron(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{
		"",
		"* * *",
		"* * * * * *",
		"61 * * * *",
		"every tuesday",
	}
	for _, expr := range invalid {
		err := ValidateCron(expr)
		if err == nil {
			t.Errorf("ValidateCron(%q) = nil, want error", expr)
			continue
		}
		if !errors.Is(err, ErrInvalidCron) {
			t.Errorf("ValidateCron(%q) = %v, want ErrInvalidCron", expr, err)
		}
	}
}

func TestNextRun(t *testing.T) {
	after := time.Date(2026, 3, 10, 14, 45, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 10, 14, 46, 0, 0, time.UTC)},
		{"0 * * * *", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)},
		{"0 6 * * *", time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := NextRun(tt.expr, after)
			if err != nil {
				t.Fatalf("NextRun(%q) error = %v", tt.expr, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NextRun(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNextRun_InvalidExpression(t *testing.T) {
	if _, err := NextRun("bogus", time.Now()); !errors.Is(err, ErrInvalidCron) {
		t.Errorf("NextRun(bogus) error = %v, want ErrInvalidCron", err)
	}
}
