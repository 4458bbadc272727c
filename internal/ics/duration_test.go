package ics

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "PT15M", want: 15 * time.Minute},
		{in: "-PT15M", want: -15 * time.Minute},
		{in: "+PT1H30M", want: 90 * time.Minute},
		{in: "P1D", want: 24 * time.Hour},
		{in: "P1DT2H", want: 26 * time.Hour},
		{in: "P2W", want: 14 * 24 * time.Hour},
		{in: "PT0S", want: 0},
		{in: "pt10s", want: 10 * time.Second},
		{in: "", wantErr: true},
		{in: "15M", wantErr: true},
		{in: "PT15", wantErr: true},
		{in: "P1H", wantErr: true},
		{in: "PTM", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDuration(%q) = %s, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDuration(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "PT0S"},
		{-15 * time.Minute, "-PT15M"},
		{24 * time.Hour, "P1D"},
		{26*time.Hour + 30*time.Second, "P1DT2H30S"},
		{90 * time.Minute, "PT1H30M"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
		back, err := parseDuration(tt.want)
		if err != nil || back != tt.in {
			t.Errorf("parseDuration(%q) = %s, %v", tt.want, back, err)
		}
	}
}
