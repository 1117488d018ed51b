// cmd/spectrum.go
package cmd

import (
	"fmt"
	"io"
)

const spectrumWidth = 60

// spectrumLevels shades a column from empty to full
const spectrumLevels = " .:-=+*#%@"

// spectrumView draws the normalised tempo spectrum as one text line per
// window, slow tempi on the left. It implements dsp.Observer.
type spectrumView struct {
	w       io.Writer
	columns []int // column of each spectrum bin
	peaks   []float32
	line    []byte
}

func newSpectrumView(w io.Writer, width int) *spectrumView {
	return &spectrumView{
		w:     w,
		peaks: make([]float32, width),
		line:  make([]byte, width),
	}
}

// OnInit maps every bin onto a column. The axis is linear in tempo with
// the first bin at 1, so it spreads directly over the width.
func (v *spectrumView) OnInit(axis []float32) {
	width := len(v.peaks)
	v.columns = make([]int, len(axis))
	for i, a := range axis {
		col := int(a * float32(width))
		v.columns[i] = min(max(col, 0), width-1)
	}
}

func (v *spectrumView) OnResult(spectrum []float32, bpm float32) {
	clear(v.peaks)
	for i, s := range spectrum {
		if i >= len(v.columns) {
			break
		}
		col := v.columns[i]
		v.peaks[col] = max(v.peaks[col], s)
	}

	top := len(spectrumLevels) - 1
	for i, p := range v.peaks {
		level := int(p * float32(top))
		v.line[i] = spectrumLevels[min(max(level, 0), top)]
	}
	fmt.Fprintf(v.w, "|%s| %6.1f\n", v.line, bpm)
}
