// Package elftest builds small synthetic ELF images for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

type Section struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint64
	Align uint64
	Data  []byte
}

// Segment describes a program header. When Section is set, the offset,
// addresses and sizes are taken from that section.
type Segment struct {
	Type    elf.ProgType
	Flags   elf.ProgFlag
	Section string
	Offset  uint64
	VAddr   uint64
	Size    uint64
	Align   uint64
}

type Image struct {
	Class    elf.Class
	Order    binary.ByteOrder
	OSABI    elf.OSABI
	Type     elf.Type
	Entry    uint64
	Sections []Section
	Segments []Segment
	// NoNames leaves e_shstrndx at SHN_UNDEF and emits no .shstrtab.
	NoNames bool
}

// Layout records where Build placed things.
type Layout struct {
	Phoff          uint64
	Shoff          uint64
	SectionOffsets map[string]uint64
}

func (img Image) order() binary.ByteOrder {
	if img.Order == nil {
		return binary.LittleEndian
	}
	return img.Order
}

func (img Image) wide() bool {
	return img.Class != elf.ELFCLASS32
}

// Build serialises img: file header, program headers, section contents,
// the section name table and finally the section header table.
func Build(img Image) ([]byte, Layout) {
	order := img.order()
	wide := img.wide()

	ehsize, phentsize, shentsize := 52, 32, 40
	if wide {
		ehsize, phentsize, shentsize = 64, 56, 64
	}

	sections := append([]Section{{}}, img.Sections...)
	var strtab []byte
	nameIdx := make([]uint32, len(sections))
	if !img.NoNames {
		strtab = []byte{0}
		sections = append(sections, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Align: 1})
		nameIdx = make([]uint32, len(sections))
		for i, s := range sections {
			if i == 0 {
				continue
			}
			nameIdx[i] = uint32(len(strtab))
			strtab = append(strtab, s.Name...)
			strtab = append(strtab, 0)
		}
		sections[len(sections)-1].Data = strtab
	}

	layout := Layout{
		Phoff:          uint64(ehsize),
		SectionOffsets: map[string]uint64{},
	}
	pos := uint64(ehsize + phentsize*len(img.Segments))
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if i == 0 {
			continue
		}
		if s.Align > 1 {
			pos = alignUp(pos, s.Align)
		}
		offsets[i] = pos
		layout.SectionOffsets[s.Name] = pos
		pos += uint64(len(s.Data))
	}
	layout.Shoff = alignUp(pos, 8)

	var shstrndx uint16
	if !img.NoNames {
		shstrndx = uint16(len(sections) - 1)
	}

	var out bytes.Buffer
	ident := [elf.EI_NIDENT]byte{0x7F, 'E', 'L', 'F', byte(img.Class), dataByte(order), byte(elf.EV_CURRENT), byte(img.OSABI)}
	if img.Class == elf.ELFCLASSNONE {
		ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	}
	typ := img.Type
	if typ == elf.ET_NONE {
		typ = elf.ET_EXEC
	}

	if wide {
		write(&out, order, elf.Header64{
			Ident:     ident,
			Type:      uint16(typ),
			Machine:   uint16(elf.EM_X86_64),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     img.Entry,
			Phoff:     layout.Phoff,
			Shoff:     layout.Shoff,
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(img.Segments)),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections)),
			Shstrndx:  shstrndx,
		})
	} else {
		write(&out, order, elf.Header32{
			Ident:     ident,
			Type:      uint16(typ),
			Machine:   uint16(elf.EM_386),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     uint32(img.Entry),
			Phoff:     uint32(layout.Phoff),
			Shoff:     uint32(layout.Shoff),
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(img.Segments)),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections)),
			Shstrndx:  shstrndx,
		})
	}

	for _, seg := range img.Segments {
		off, vaddr, size := seg.Offset, seg.VAddr, seg.Size
		if seg.Section != "" {
			for i, s := range sections {
				if s.Name == seg.Section {
					off, vaddr, size = offsets[i], s.Addr, uint64(len(s.Data))
				}
			}
		}
		if wide {
			write(&out, order, elf.Prog64{
				Type: uint32(seg.Type), Flags: uint32(seg.Flags),
				Off: off, Vaddr: vaddr, Paddr: vaddr,
				Filesz: size, Memsz: size, Align: seg.Align,
			})
		} else {
			write(&out, order, elf.Prog32{
				Type: uint32(seg.Type), Flags: uint32(seg.Flags),
				Off: uint32(off), Vaddr: uint32(vaddr), Paddr: uint32(vaddr),
				Filesz: uint32(size), Memsz: uint32(size), Align: uint32(seg.Align),
			})
		}
	}

	for i, s := range sections {
		if i == 0 {
			continue
		}
		pad(&out, offsets[i])
		out.Write(s.Data)
	}
	pad(&out, layout.Shoff)

	for i, s := range sections {
		if wide {
			write(&out, order, elf.Section64{
				Name: nameIdx[i], Type: uint32(s.Type), Flags: uint64(s.Flags),
				Addr: s.Addr, Off: offsets[i], Size: uint64(len(s.Data)),
				Addralign: s.Align,
			})
		} else {
			write(&out, order, elf.Section32{
				Name: nameIdx[i], Type: uint32(s.Type), Flags: uint32(s.Flags),
				Addr: uint32(s.Addr), Off: uint32(offsets[i]), Size: uint32(len(s.Data)),
				Addralign: uint32(s.Align),
			})
		}
	}
	return out.Bytes(), layout
}

// Standard is a small executable with a note, code and data section and
// the usual PT_LOAD/PT_NOTE segments.
func Standard(class elf.Class, text []byte) Image {
	return Image{
		Class: class,
		Entry: 0x1000,
		Sections: []Section{
			{Name: ".note.ABI-tag", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addr: 0x400, Align: 4, Data: make([]byte, 32)},
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1000, Align: 16, Data: text},
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x2000, Align: 8, Data: []byte("chisel\x00\x00")},
		},
		Segments: []Segment{
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Section: ".text", Align: 0x1000},
			{Type: elf.PT_NOTE, Flags: elf.PF_R, Section: ".note.ABI-tag", Align: 4},
			{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W, Section: ".data", Align: 0x1000},
		},
	}
}

func dataByte(order binary.ByteOrder) byte {
	if order == binary.BigEndian {
		return byte(elf.ELFDATA2MSB)
	}
	return byte(elf.ELFDATA2LSB)
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

func pad(b *bytes.Buffer, to uint64) {
	for uint64(b.Len()) < to {
		b.WriteByte(0)
	}
}

func write(b *bytes.Buffer, order binary.ByteOrder, v interface{}) {
	if err := binary.Write(b, order, v); err != nil {
		panic(err)
	}
}
