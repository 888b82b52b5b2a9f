package input

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadScript is returned for malformed input scripts.
var ErrBadScript = errors.New("input: bad script")

// Step holds a key state for a number of ticks.
type Step struct {
	Keys  KeyState
	Ticks int
}

// Script replays key states tick by tick, for headless clients and tests.
//
// The text form is a comma separated list of KEYS:TICKS, where KEYS is any
// combination of W, A, S, D (empty for no keys), e.g. "W:60,WD:30,:10".
type Script struct {
	steps []Step
	loop  bool
	step  int
	tick  int
}

// ParseScript parses the text form.
func ParseScript(src string, loop bool) (*Script, error) {
	s := &Script{loop: loop}
	src = strings.TrimSpace(src)
	if src == "" {
		return s, nil
	}
	for _, field := range strings.Split(src, ",") {
		keys, count, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q has no tick count", ErrBadScript, field)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q has a bad tick count", ErrBadScript, field)
		}
		var k KeyState
		for _, r := range strings.ToUpper(keys) {
			switch r {
			case 'W':
				k.Forward = true
			case 'S':
				k.Back = true
			case 'A':
				k.Left = true
			case 'D':
				k.Right = true
			default:
				return nil, fmt.Errorf("%w: unknown key %q", ErrBadScript, r)
			}
		}
		if n > 0 {
			s.steps = append(s.steps, Step{Keys: k, Ticks: n})
		}
	}
	return s, nil
}

// Next returns the key state for the coming tick. An exhausted script
// releases every key.
func (s *Script) Next() KeyState {
	if len(s.steps) == 0 {
		return KeyState{}
	}
	if s.step >= len(s.steps) {
		if !s.loop {
			return KeyState{}
		}
		s.step = 0
	}
	cur := s.steps[s.step]
	s.tick++
	if s.tick >= cur.Ticks {
		s.tick = 0
		s.step++
	}
	return cur.Keys
}

// Done reports whether a non-looping script has run out.
func (s *Script) Done() bool {
	return !s.loop && s.step >= len(s.steps)
}
