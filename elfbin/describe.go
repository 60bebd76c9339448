package elfbin

import (
	"debug/elf"
	"fmt"
	"strings"
)

var abiNames = map[uint8]string{
	0x00: "SystemV",
	0x01: "HP-UX",
	0x02: "NetBSD",
	0x03: "Linux",
	0x04: "GNU Hurd",
	0x06: "Solaris",
	0x07: "AIX",
	0x08: "IRIX",
	0x09: "FreeBSD",
	0x0C: "OpenBSD",
	0x0D: "OpenVMS",
}

// ABIName is a readable name for an EI_OSABI value.
func ABIName(abi uint8) string {
	if n, ok := abiNames[abi]; ok {
		return n
	}
	return elf.OSABI(abi).String()
}

var machineNames = map[uint16]string{
	0x03: "Intel x86",
	0x3E: "AMD x86-64",
	0x14: "PowerPC",
	0x15: "PowerPC 64-bit",
	0x28: "Arm",
	0x32: "IA-64",
	0xB7: "Arm 64-bit",
}

// MachineName is a readable name for an e_machine value.
func MachineName(m uint16) string {
	if n, ok := machineNames[m]; ok {
		return n
	}
	return elf.Machine(m).String()
}

// TypeName names an e_type value, e.g. ET_DYN.
func TypeName(t uint16) string {
	return elf.Type(t).String()
}

// SegmentTypeName names a p_type value, e.g. PT_LOAD.
func SegmentTypeName(t uint32) string {
	return elf.ProgType(t).String()
}

// SectionTypeName names an sh_type value, e.g. SHT_PROGBITS.
func SectionTypeName(t uint32) string {
	return elf.SectionType(t).String()
}

// SegmentFlags renders p_flags in the compact "RWX" form used by readelf.
func SegmentFlags(f uint32) string {
	var b strings.Builder
	for _, p := range []struct {
		bit elf.ProgFlag
		c   byte
	}{{elf.PF_R, 'R'}, {elf.PF_W, 'W'}, {elf.PF_X, 'E'}} {
		if elf.ProgFlag(f)&p.bit != 0 {
			b.WriteByte(p.c)
		} else {
			b.WriteByte(' ')
		}
	}
	if rest := elf.ProgFlag(f) &^ (elf.PF_R | elf.PF_W | elf.PF_X); rest != 0 {
		fmt.Fprintf(&b, "+0x%x", uint32(rest))
	}
	return b.String()
}

// SectionFlags renders sh_flags in the letter form used by readelf.
func SectionFlags(f uint64) string {
	var b strings.Builder
	for _, p := range []struct {
		bit elf.SectionFlag
		c   byte
	}{
		{elf.SHF_WRITE, 'W'},
		{elf.SHF_ALLOC, 'A'},
		{elf.SHF_EXECINSTR, 'X'},
		{elf.SHF_MERGE, 'M'},
		{elf.SHF_STRINGS, 'S'},
		{elf.SHF_INFO_LINK, 'I'},
		{elf.SHF_LINK_ORDER, 'L'},
		{elf.SHF_GROUP, 'G'},
		{elf.SHF_TLS, 'T'},
	} {
		if elf.SectionFlag(f)&p.bit != 0 {
			b.WriteByte(p.c)
		}
	}
	return b.String()
}
