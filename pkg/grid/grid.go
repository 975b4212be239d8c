// Package grid keeps a fixed-size character screen fed by program output.
package grid

import "strings"

// Default MSX text mode geometry (SCREEN 0, WIDTH 40).
const (
	Cols = 40
	Rows = 24
)

// GetGridCoords converts a linear cell index into column and row.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// Screen is a character grid with a cursor. Writing past the last column
// wraps, and a newline on the last row scrolls everything up one row.
type Screen struct {
	cols, rows int
	cells      []rune
	cursor     int
}

// New returns a blank cols by rows screen.
func New(cols, rows int) *Screen {
	s := &Screen{cols: cols, rows: rows, cells: make([]rune, cols*rows)}
	s.Clear()
	return s
}

// Clear blanks the screen and homes the cursor.
func (s *Screen) Clear() {
	for i := range s.cells {
		s.cells[i] = ' '
	}
	s.cursor = 0
}

// Size returns the columns and rows.
func (s *Screen) Size() (int, int) {
	return s.cols, s.rows
}

// Cursor returns the cursor column and row.
func (s *Screen) Cursor() (x, y int) {
	return GetGridCoords(s.cursor, s.cols)
}

// WriteString puts text at the cursor. Control characters other than
// newline and carriage return are ignored. Filling the last cell scrolls
// at once, so the cursor always sits on a visible cell.
func (s *Screen) WriteString(text string) {
	for _, r := range text {
		switch {
		case r == '\n':
			s.cursor = (s.cursor/s.cols + 1) * s.cols
		case r == '\r':
			s.cursor -= s.cursor % s.cols
		case r < ' ':
		default:
			s.cells[s.cursor] = r
			s.cursor++
		}
		if s.cursor >= len(s.cells) {
			s.scroll()
		}
	}
}

func (s *Screen) scroll() {
	copy(s.cells, s.cells[s.cols:])
	last := s.cells[len(s.cells)-s.cols:]
	for i := range last {
		last[i] = ' '
	}
	s.cursor -= s.cols
}

// Lines returns every row with trailing blanks removed.
func (s *Screen) Lines() []string {
	out := make([]string, s.rows)
	for y := range out {
		row := s.cells[y*s.cols : (y+1)*s.cols]
		out[y] = strings.TrimRight(string(row), " ")
	}
	return out
}
