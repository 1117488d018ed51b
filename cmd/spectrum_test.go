package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ColonelBlimp/bpmdetect/internal/dsp"
)

func TestSpectrumView_Render(t *testing.T) {
	var buf bytes.Buffer
	v := newSpectrumView(&buf, 10)

	// Four bins: fastest tempo at axis 1, slowest near 0
	v.OnInit([]float32{1, 0.62, 0.31, 0.02})
	v.OnResult([]float32{0.1, 1, -0.5, 0.5}, 128)

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "|") || !strings.Contains(line, "| 128.0") {
		t.Fatalf("unexpected line %q", line)
	}

	bars := line[1:11]
	want := map[int]byte{
		9: spectrumLevels[0], // 0.1 rounds down to the first shade
		6: spectrumLevels[9], // the peak
		3: spectrumLevels[0], // negative values are empty
		0: spectrumLevels[4],
	}
	for col, ch := range want {
		if bars[col] != ch {
			t.Errorf("column %d = %q, want %q (bars %q)", col, bars[col], ch, bars)
		}
	}
}

func TestSpectrumView_WithDetector(t *testing.T) {
	var buf bytes.Buffer
	v := newSpectrumView(&buf, spectrumWidth)

	det, err := dsp.NewDetector(dsp.DefaultDetectorConfig(8000, 16384), v)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	defer det.Close()

	if len(v.columns) != len(det.FrequencyAxis()) {
		t.Fatalf("columns = %d, want %d", len(v.columns), len(det.FrequencyAxis()))
	}

	if _, err := det.Process(make([]float32, 16384)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Errorf("rendered %d lines, want 1", got)
	}
}
