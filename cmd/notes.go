// cmd/notes.go
package cmd

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ColonelBlimp/bpmdetect/internal/analyzer"
	"github.com/ColonelBlimp/bpmdetect/internal/dsp"
)

const (
	// notesSize is the FFT length of the live note spectrum
	notesSize = 4096
	// notesFloorDB is the level drawn as an empty column
	notesFloorDB = -60.0

	// The drawn note range is one semitone wider than the analysed one on
	// each side
	notesMinNote = dsp.LowestNote - 2
	notesMaxNote = dsp.HighestNote + 2
)

// notesView draws the live audio spectrum as one text line, with columns
// placed by musical note so every octave has the same width.
type notesView struct {
	w        io.Writer
	spectrum *dsp.NoteSpectrum
	columns  []int // column of each spectrum bin
	peaks    []float32
	line     []byte
}

func newNotesView(w io.Writer, spectrum *dsp.NoteSpectrum, width int) *notesView {
	v := &notesView{
		w:        w,
		spectrum: spectrum,
		peaks:    make([]float32, width),
		line:     make([]byte, width),
	}
	notes := spectrum.Notes()
	v.columns = make([]int, len(notes))
	for i, n := range notes {
		v.columns[i] = noteColumn(float64(n), width)
	}
	return v
}

func noteColumn(note float64, width int) int {
	kx := float64(width) / (notesMaxNote - notesMinNote)
	col := int((note-notesMinNote)*kx + 0.5)
	return min(max(col, 0), width-1)
}

// Legend labels the column of every C in range
func (v *notesView) Legend() string {
	legend := []byte(strings.Repeat(" ", len(v.line)))
	for note := dsp.LowestNote; note <= dsp.HighestNote; note += 12 {
		label := dsp.NoteName(float64(note))
		col := noteColumn(float64(note), len(legend))
		copy(legend[col:], label)
	}
	return fmt.Sprintf(" %s", legend)
}

// Render transforms samples and writes one shaded line
func (v *notesView) Render(samples []float32) error {
	mags, err := v.spectrum.Compute(samples)
	if err != nil {
		return err
	}

	clear(v.peaks)
	for i, m := range mags {
		col := v.columns[i]
		v.peaks[col] = max(v.peaks[col], m)
	}

	top := len(spectrumLevels) - 1
	for i, p := range v.peaks {
		level := 0
		if p > 0 {
			db := 20 * math.Log10(float64(p))
			level = int((db - notesFloorDB) / -notesFloorDB * float64(top))
		}
		v.line[i] = spectrumLevels[min(max(level, 0), top)]
	}
	_, err = fmt.Fprintf(v.w, "|%s|\n", v.line)
	return err
}

// sampleReader reads samples at an absolute stream position.
// *audio.RingBuffer satisfies it.
type sampleReader interface {
	ReadAt(dst []float32, pos uint64) error
}

// notesUpdate chains next with a note spectrum of the newest samples of
// every analysed window
func notesUpdate(next analyzer.UpdateCallback, src sampleReader, view *notesView, windowLen int, logger *logrus.Logger) analyzer.UpdateCallback {
	buf := make([]float32, view.spectrum.Size())
	return func(u analyzer.Update) {
		if next != nil {
			next(u)
		}

		end := u.Position + uint64(windowLen)
		if end < uint64(len(buf)) {
			return
		}
		if err := src.ReadAt(buf, end-uint64(len(buf))); err != nil {
			logger.WithError(err).Debug("note spectrum skipped")
			return
		}
		if err := view.Render(buf); err != nil {
			logger.WithError(err).Warn("note spectrum failed")
		}
	}
}
