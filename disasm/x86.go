package disasm

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/Gman0064/chisel/elfbin"
)

// maxX86Len is the architectural limit on x86 instruction length.
const maxX86Len = 15

// X86 decodes x86 machine code with x86asm in 16, 32 or 64-bit mode.
type X86 struct {
	Mode int
}

// ModeFor picks the decoder mode matching an image's word size.
func ModeFor(a elfbin.Arch) (int, error) {
	switch a {
	case elfbin.X86:
		return 32, nil
	case elfbin.X86_64:
		return 64, nil
	}
	return 0, errors.Wrapf(elfbin.ErrMalformedHeader, "no decoder mode for %s architecture", a)
}

// TryDecode decodes the leading instruction of window. x86asm answers a
// truncated or unintelligible window with a bare one-byte prefix and no
// error; that is reported as invalid so the caller widens the window.
func (d X86) TryDecode(window []byte, ip uint64) (string, int, bool) {
	inst, err := x86asm.Decode(window, d.Mode)
	if err != nil || inst.Op == 0 || inst.Len == 0 {
		return "", 0, false
	}
	return x86asm.IntelSyntax(inst, ip, nil), inst.Len, true
}

// MaxLen is the longest window worth trying before giving up.
func (d X86) MaxLen() int {
	return maxX86Len
}

// BranchTarget returns the absolute target of a relative jump or call
// starting at ip, if the instruction is one.
func (d X86) BranchTarget(code []byte, ip uint64) (uint64, bool) {
	inst, err := x86asm.Decode(code, d.Mode)
	if err != nil || !isRelativeJumpOrCall(inst.Op) {
		return 0, false
	}
	return relativeTarget(inst, ip)
}

func isRelativeJumpOrCall(op x86asm.Op) bool {
	switch op {
	case x86asm.JMP, x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE,
		x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO,
		x86asm.JP, x86asm.JS, x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE, x86asm.CALL:
		return true
	}
	return false
}

func relativeTarget(inst x86asm.Inst, ip uint64) (uint64, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		if rel, ok := arg.(x86asm.Rel); ok {
			return uint64(int64(ip) + int64(inst.Len) + int64(rel)), true
		}
	}
	return 0, false
}
