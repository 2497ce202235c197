package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseYearMonth(t *testing.T) {
	tests := []struct {
		in      string
		want    YearMonth
		wantErr bool
	}{
		{in: "2025-02", want: YearMonth{Year: 2025, Month: time.February}},
		{in: " 2024-12 ", want: YearMonth{Year: 2024, Month: time.December}},
		{in: "2025-13", wantErr: true},
		{in: "2025-2", wantErr: true},
		{in: "feb-2025", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseYearMonth(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Errorf("ParseYearMonth(%q) error = %v, want ErrInvalidDate", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseYearMonth(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseYearMonth(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestYearMonth_Days(t *testing.T) {
	tests := []struct {
		month YearMonth
		want  int
	}{
		{YearMonth{2025, time.January}, 31},
		{YearMonth{2025, time.February}, 28},
		{YearMonth{2024, time.February}, 29}, // leap year
		{YearMonth{2025, time.April}, 30},
		{YearMonth{2025, time.December}, 31},
	}

	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			if got := tt.month.Days(); got != tt.want {
				t.Errorf("%s Days() = %d, want %d", tt.month, got, tt.want)
			}
			if last := tt.month.LastDay(); last.Day() != tt.want {
				t.Errorf("%s LastDay() = %s, want day %d", tt.month, last, tt.want)
			}
		})
	}
}

func TestYearMonth_Contains(t *testing.T) {
	m := YearMonth{Year: 2025, Month: time.February}

	if !m.Contains(NewDate(2025, 2, 1)) {
		t.Error("Contains(2025-02-01) = false, want true")
	}
	if !m.Contains(NewDate(2025, 2, 28)) {
		t.Error("Contains(2025-02-28) = false, want true")
	}
	if m.Contains(NewDate(2025, 3, 1)) {
		t.Error("Contains(2025-03-01) = true, want false")
	}
	if m.Contains(NewDate(2024, 2, 15)) {
		t.Error("Contains(2024-02-15) = true, want false")
	}
}

func TestYearMonth_String(t *testing.T) {
	m := YearMonth{Year: 2025, Month: time.March}
	if got := m.String(); got != "2025-03" {
		t.Errorf("String() = %q, want %q", got, "2025-03")
	}
}
