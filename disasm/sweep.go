// Package disasm recovers instruction boundaries from raw code bytes by
// linear sweep.
package disasm

// Decoder is the instruction decoding primitive. TryDecode reports the
// text and length of the instruction at the start of window, or ok=false
// when window does not hold a complete valid instruction.
type Decoder interface {
	TryDecode(window []byte, ip uint64) (text string, length int, ok bool)
}

// A Decoder that also implements MaxLen bounds how far the sweep widens
// a window before giving up.
type maxLener interface {
	MaxLen() int
}

// A Decoder that also implements BranchTarget lets the sweep resolve the
// destination of relative branches.
type brancher interface {
	BranchTarget(code []byte, ip uint64) (uint64, bool)
}

// Instruction is one decoded instruction. Bytes aliases the section data.
type Instruction struct {
	Addr   uint64
	Len    int
	Text   string
	Bytes  []byte
	Target uint64
	Branch bool
}

// Sweep walks a code region once, front to back. The window presented
// to the decoder starts one byte wide and grows a byte at a time until
// an instruction decodes; the next window starts right after it. When
// the window cannot grow any further the sweep stops and the bytes left
// over are reported by Remainder.
type Sweep struct {
	dec    Decoder
	code   []byte
	base   uint64
	maxLen int

	start, end int
	cur        Instruction
	remainder  int
	done       bool
}

// NewSweep prepares a sweep over code, which is mapped at base.
func NewSweep(dec Decoder, code []byte, base uint64) *Sweep {
	s := &Sweep{dec: dec, code: code, base: base, end: 1}
	if m, ok := dec.(maxLener); ok {
		s.maxLen = m.MaxLen()
	}
	if len(code) == 0 {
		s.end = 0
	}
	return s
}

// Next decodes the next instruction and reports whether there was one.
func (s *Sweep) Next() bool {
	if s.done {
		return false
	}
	for s.start < len(s.code) {
		window := s.code[s.start:s.end]
		ip := s.base + uint64(s.start)
		text, n, ok := s.dec.TryDecode(window, ip)
		if ok && n > 0 && n <= len(window) {
			s.cur = Instruction{
				Addr:  ip,
				Len:   n,
				Text:  text,
				Bytes: s.code[s.start : s.start+n],
			}
			if b, ok := s.dec.(brancher); ok {
				s.cur.Target, s.cur.Branch = b.BranchTarget(s.cur.Bytes, ip)
			}
			s.start += n
			s.end = min(s.start+1, len(s.code))
			return true
		}
		if s.end >= len(s.code) || (s.maxLen > 0 && len(window) >= s.maxLen) {
			break
		}
		s.end++
	}
	s.remainder = len(s.code) - s.start
	s.start = len(s.code)
	s.done = true
	return false
}

// Instruction returns the instruction decoded by the last call to Next.
func (s *Sweep) Instruction() Instruction {
	return s.cur
}

// Remainder is the number of trailing bytes that could not be decoded.
// It is only meaningful once Next has returned false.
func (s *Sweep) Remainder() int {
	return s.remainder
}

// Disassemble runs a sweep to completion.
func Disassemble(dec Decoder, code []byte, base uint64) ([]Instruction, int) {
	var out []Instruction
	s := NewSweep(dec, code, base)
	for s.Next() {
		out = append(out, s.Instruction())
	}
	return out, s.Remainder()
}
