// Package session keeps a line-numbered program between commands, the way
// an interactive BASIC prompt does, and runs it on the simulated kernel.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"msxbasrom/pkg/basic"
	"msxbasrom/pkg/compiler"
	"msxbasrom/pkg/kernelsim"
	"msxbasrom/pkg/rom"
	"msxbasrom/pkg/target"
)

const maxLine = 65529

// Session is one interactive program. Not safe for concurrent use.
type Session struct {
	Banked bool
	Limit  int // instruction limit for RUN

	cfg   target.Config
	lines map[int]string
}

// New returns an empty session for cfg in plain mode.
func New(cfg target.Config) *Session {
	return &Session{cfg: cfg, Limit: 50_000_000, lines: make(map[int]string)}
}

// Len returns the number of stored lines.
func (s *Session) Len() int {
	return len(s.lines)
}

// Source returns the stored program in line order.
func (s *Session) Source() string {
	nums := make([]int, 0, len(s.lines))
	for n := range s.lines {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	var sb strings.Builder
	for _, n := range nums {
		fmt.Fprintf(&sb, "%d %s\n", n, s.lines[n])
	}
	return sb.String()
}

// Exec handles one input line. A leading line number stores (or, with no
// text, deletes) that line; anything else is a command or an immediate
// statement. quit reports BYE.
func (s *Session) Exec(w io.Writer, input string) (quit bool, err error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}
	if n, rest, ok := splitNumber(input); ok {
		if n > maxLine {
			return false, fmt.Errorf("line number %d out of range", n)
		}
		if rest == "" {
			delete(s.lines, n)
		} else {
			s.lines[n] = rest
		}
		return false, nil
	}

	word, arg, _ := strings.Cut(input, " ")
	arg = strings.Trim(strings.TrimSpace(arg), `"`)
	switch strings.ToUpper(word) {
	case "BYE", "QUIT":
		return true, nil
	case "NEW":
		s.lines = make(map[int]string)
	case "LIST":
		_, err = io.WriteString(w, s.Source())
	case "RUN":
		err = s.run(w, s.Source())
	case "MEGA":
		switch strings.ToUpper(arg) {
		case "", "ON":
			s.Banked = true
		case "OFF":
			s.Banked = false
		default:
			return false, errors.New("MEGA takes ON or OFF")
		}
		fmt.Fprintf(w, "banked mode %v\n", s.Banked)
	case "SAVE":
		err = s.save(w, arg)
	case "LOAD":
		err = s.load(arg)
	default:
		err = s.run(w, "1 "+input+"\n")
	}
	return false, err
}

func splitNumber(input string) (int, string, bool) {
	end := 0
	for end < len(input) && input[end] >= '0' && input[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, "", false
	}
	n, err := strconv.Atoi(input[:end])
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(input[end:]), true
}

func (s *Session) compile(src string) (*compiler.Result, error) {
	prog, err := basic.ParseSource(src)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(prog, compiler.Options{Banked: s.Banked, Optimize: !s.Banked, Config: s.cfg})
}

func (s *Session) run(w io.Writer, src string) error {
	res, err := s.compile(src)
	if err != nil {
		return err
	}
	m, err := kernelsim.New(s.cfg, res.Banks)
	if err != nil {
		return err
	}
	runErr := m.Run(s.Limit)
	if _, err := io.WriteString(w, m.Output()); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if out := m.Output(); out != "" && !strings.HasSuffix(out, "\n") {
		io.WriteString(w, "\n")
	}
	return nil
}

func (s *Session) save(w io.Writer, path string) error {
	if path == "" {
		return errors.New("SAVE needs a file name")
	}
	res, err := s.compile(s.Source())
	if err != nil {
		return err
	}
	n, err := rom.WriteFile(path, s.cfg.Mapper, nil, res.Banks)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "saved %d banks (%d bytes) to %s\n", res.BankCount, n, path)
	return nil
}

// load replaces the program with the numbered lines of a source file.
func (s *Session) load(path string) error {
	if path == "" {
		return errors.New("LOAD needs a file name")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := make(map[int]string)
	for i, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		n, rest, ok := splitNumber(ln)
		if !ok {
			return fmt.Errorf("%s:%d: line without a number", path, i+1)
		}
		lines[n] = rest
	}
	s.lines = lines
	return nil
}
