package cmd

import (
	"bytes"
	"testing"
)

func TestPrintDevices(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		selected int
		want     string
	}{
		{"none", nil, -1, "no capture devices found\n"},
		{"default device", []string{"Built-in", "USB Audio"}, -1, "  [0] Built-in\n  [1] USB Audio\n"},
		{"selected", []string{"Built-in", "USB Audio"}, 1, "  [0] Built-in\n* [1] USB Audio\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printDevices(&buf, tt.names, tt.selected)
			if buf.String() != tt.want {
				t.Errorf("printDevices() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
