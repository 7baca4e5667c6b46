// Package meter renders captured audio blocks as a single overwritable row of
// amplitude glyphs.
package meter

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Levels is the number of amplitude steps a glyph table covers.
const Levels = 8

var ErrGlyphCount = errors.New("glyph table must hold 8 symbols")

// Glyphs maps an amplitude level to the symbol drawn for it, quietest first.
type Glyphs [Levels]rune

// DefaultGlyphs is the block-element ramp.
var DefaultGlyphs = Glyphs{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '▉'}

// ParseGlyphs builds a table from a string of exactly Levels runes.
// An empty string yields DefaultGlyphs.
func ParseGlyphs(s string) (Glyphs, error) {
	if s == "" {
		return DefaultGlyphs, nil
	}
	if n := utf8.RuneCountInString(s); n != Levels {
		return Glyphs{}, fmt.Errorf("%w: got %d", ErrGlyphCount, n)
	}
	var g Glyphs
	i := 0
	for _, r := range s {
		g[i] = r
		i++
	}
	return g, nil
}

// Glyph returns the symbol for level. Anything outside the table falls back
// to the quietest symbol.
func (g Glyphs) Glyph(level int) rune {
	if level < 0 || level >= Levels {
		return g[0]
	}
	return g[level]
}

// Level maps one sample to a glyph index: |s| scaled by 7 and truncated.
// Magnitudes above 1.0 clamp to the top level; NaN maps to level 0.
func Level(s float32) int {
	a := math.Abs(float64(s))
	if math.IsNaN(a) {
		return 0
	}
	if a >= 1 {
		return Levels - 1
	}
	return int(a * (Levels - 1))
}

// Row is the glyph indices for one line of the display.
type Row []uint8

// Rows splits block into consecutive chunks of at most width samples and maps
// each chunk to a Row. A width below 1 is treated as 1.
func Rows(block []float32, width int) []Row {
	width = max(width, 1)
	rows := make([]Row, 0, (len(block)+width-1)/width)
	for chunk := range slices.Chunk(block, width) {
		row := make(Row, len(chunk))
		for i, s := range chunk {
			row[i] = uint8(Level(s))
		}
		rows = append(rows, row)
	}
	return rows
}

// Render returns the text of every row for block, without terminators.
func Render(block []float32, width int, glyphs Glyphs) []string {
	width = max(width, 1)
	lines := make([]string, 0, (len(block)+width-1)/width)
	var buf []byte
	for chunk := range slices.Chunk(block, width) {
		buf = appendRow(buf[:0], chunk, glyphs)
		lines = append(lines, string(buf))
	}
	return lines
}

// appendRow appends the glyphs for one chunk to dst.
func appendRow(dst []byte, chunk []float32, glyphs Glyphs) []byte {
	for _, s := range chunk {
		dst = utf8.AppendRune(dst, glyphs.Glyph(Level(s)))
	}
	return dst
}

// Meter draws blocks onto one terminal row, each line terminated by a carriage
// return so the next draw overwrites it. Draw is meant to be called from a
// single goroutine; it reuses an internal buffer.
type Meter struct {
	w      io.Writer
	width  int
	glyphs Glyphs
	buf    []byte
}

// New returns a Meter writing to w with lines at most width glyphs long.
func New(w io.Writer, width int, glyphs Glyphs) *Meter {
	width = max(width, 1)
	return &Meter{
		w:      w,
		width:  width,
		glyphs: glyphs,
		buf:    make([]byte, 0, width*utf8.UTFMax+1),
	}
}

// Width returns the maximum number of glyphs per line.
func (m *Meter) Width() int { return m.width }

// Draw writes block as one or more carriage-return terminated lines. Write
// errors are ignored: a lost frame only costs display.
func (m *Meter) Draw(block []float32) {
	for chunk := range slices.Chunk(block, m.width) {
		m.buf = append(appendRow(m.buf[:0], chunk, m.glyphs), '\r')
		_, _ = m.w.Write(m.buf)
	}
}

// Clear blanks the meter row.
func (m *Meter) Clear() {
	_, _ = io.WriteString(m.w, strings.Repeat(" ", m.width)+"\r")
}

// TerminalWidth returns the column count of f, or fallback when f is not a
// terminal.
func TerminalWidth(f *os.File, fallback int) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
