package elfbin

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// Magic is the identification prefix every ELF image starts with.
var Magic = []byte{0x7F, 'E', 'L', 'F'}

// Arch is the word size of the image, taken from EI_CLASS.
type Arch uint8

const (
	Unknown Arch = iota
	X86
	X86_64
)

func (a Arch) String() string {
	switch a {
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	}
	return "unknown"
}

func archFromClass(class uint8) Arch {
	switch class {
	case 1:
		return X86
	case 2:
		return X86_64
	}
	return Unknown
}

// Endian is the byte order declared in EI_DATA.
type Endian uint8

const (
	UnknownEndian Endian = iota
	Little
	Big
)

func (e Endian) String() string {
	switch e {
	case Little:
		return "little"
	case Big:
		return "big"
	}
	return "unknown"
}

func endianFromData(data uint8) Endian {
	switch data {
	case 1:
		return Little
	case 2:
		return Big
	}
	return UnknownEndian
}

// FileHeader is the decoded ELF file header.
type FileHeader struct {
	Arch         Arch
	Endian       Endian
	IdentVersion uint8
	OSABI        uint8
	ABIVersion   uint8
	Type         uint16
	Machine      uint16
	Version      uint32
	Entry        uint64
	Phoff        uint64
	Shoff        uint64
	Flags        uint32
	Ehsize       uint16
	Phentsize    uint16
	Phnum        uint16
	Shentsize    uint16
	Shnum        uint16
	Shstrndx     uint16

	class uint8
	data  uint8
}

func (h FileHeader) classByte() uint8 {
	switch h.Arch {
	case X86:
		return 1
	case X86_64:
		return 2
	}
	return h.class
}

func (h FileHeader) dataByte() uint8 {
	switch h.Endian {
	case Little:
		return 1
	case Big:
		return 2
	}
	return h.data
}

// ProgramTable describes the program header table.
func (h FileHeader) ProgramTable() Table {
	return Table{Offset: h.Phoff, EntrySize: uint64(h.Phentsize), Count: uint64(h.Phnum)}
}

// SectionTable describes the section header table.
func (h FileHeader) SectionTable() Table {
	return Table{Offset: h.Shoff, EntrySize: uint64(h.Shentsize), Count: uint64(h.Shnum)}
}

// Table is the geometry of a program or section header table. Entries
// are located by stride alone, never by their content.
type Table struct {
	Offset    uint64
	EntrySize uint64
	Count     uint64
}

// EntryOffset is the absolute file offset of entry i.
func (t Table) EntryOffset(i int) uint64 {
	return t.Offset + uint64(i)*t.EntrySize
}

// Range is the half-open byte range occupied by entry i.
func (t Table) Range(i int) (uint64, uint64) {
	start := t.EntryOffset(i)
	return start, start + t.EntrySize
}

// Size is the number of bytes occupied by the whole table.
func (t Table) Size() uint64 {
	return t.Count * t.EntrySize
}

// Check verifies that the whole table lies inside a buffer of n bytes.
func (t Table) Check(n int) error {
	if t.Count == 0 {
		return nil
	}
	if t.EntrySize != 0 && t.Count > (^uint64(0)-t.Offset)/t.EntrySize {
		return errors.Wrapf(ErrOutOfBounds, "table of %d entries of %d bytes at 0x%x overflows", t.Count, t.EntrySize, t.Offset)
	}
	if end := t.Offset + t.Size(); end > uint64(n) {
		return errors.Wrapf(ErrOutOfBounds, "table ends at 0x%x past end of file (%d bytes)", end, n)
	}
	return nil
}

// fieldReader accumulates the first read error so a run of field reads
// can be checked once.
type fieldReader struct {
	c    Codec
	buf  []byte
	base uint64
	arch Arch
	err  error
}

func (r *fieldReader) get(f Field) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.c.ReadField(r.buf, r.base, f, r.arch)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

// DecodeFileHeader decodes the file header at the start of buf. An
// unrecognised EI_CLASS is not an error: the header comes back with Arch
// set to Unknown and only the layout-independent fields filled in.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < len(Magic) || !bytes.Equal(buf[:len(Magic)], Magic) {
		return FileHeader{}, ErrBadMagic
	}
	if len(buf) < fileHeaderSize32 {
		return FileHeader{}, errors.Wrapf(ErrMalformedHeader, "file is %d bytes, shorter than the smallest header", len(buf))
	}

	h := FileHeader{
		class: buf[4],
		data:  buf[5],
	}
	h.Arch = archFromClass(h.class)
	h.Endian = endianFromData(h.data)

	r := &fieldReader{c: CodecFor(h.Endian), buf: buf, arch: h.Arch}
	h.IdentVersion = uint8(r.get(FileIdentVersion))
	h.OSABI = uint8(r.get(FileOSABI))
	h.ABIVersion = uint8(r.get(FileABIVersion))
	h.Type = uint16(r.get(FileType))
	h.Machine = uint16(r.get(FileMachine))
	h.Version = uint32(r.get(FileVersion))
	if r.err != nil {
		return FileHeader{}, fmt.Errorf("%w: %w", ErrMalformedHeader, r.err)
	}
	if h.Arch == Unknown {
		return h, nil
	}
	if len(buf) < FileHeaderSize(h.Arch) {
		return FileHeader{}, errors.Wrapf(ErrMalformedHeader, "%s header needs %d bytes, file is %d", h.Arch, FileHeaderSize(h.Arch), len(buf))
	}

	h.Entry = r.get(FileEntry)
	h.Phoff = r.get(FilePhoff)
	h.Shoff = r.get(FileShoff)
	h.Flags = uint32(r.get(FileFlags))
	h.Ehsize = uint16(r.get(FileEhsize))
	h.Phentsize = uint16(r.get(FilePhentsize))
	h.Phnum = uint16(r.get(FilePhnum))
	h.Shentsize = uint16(r.get(FileShentsize))
	h.Shnum = uint16(r.get(FileShnum))
	h.Shstrndx = uint16(r.get(FileShstrndx))
	if r.err != nil {
		return FileHeader{}, r.err
	}
	return h, nil
}

// Encode writes the header back into buf at the offsets it was decoded
// from. Bytes that are not header fields are left untouched.
func (h FileHeader) Encode(buf []byte) error {
	if len(buf) < len(Magic) {
		return errors.Wrap(ErrOutOfBounds, "buffer too small for magic number")
	}
	copy(buf, Magic)
	c := CodecFor(h.Endian)
	fields := []struct {
		f Field
		v uint64
	}{
		{FileClass, uint64(h.classByte())},
		{FileData, uint64(h.dataByte())},
		{FileIdentVersion, uint64(h.IdentVersion)},
		{FileOSABI, uint64(h.OSABI)},
		{FileABIVersion, uint64(h.ABIVersion)},
		{FileType, uint64(h.Type)},
		{FileMachine, uint64(h.Machine)},
		{FileVersion, uint64(h.Version)},
	}
	if h.Arch != Unknown {
		fields = append(fields, []struct {
			f Field
			v uint64
		}{
			{FileEntry, h.Entry},
			{FilePhoff, h.Phoff},
			{FileShoff, h.Shoff},
			{FileFlags, uint64(h.Flags)},
			{FileEhsize, uint64(h.Ehsize)},
			{FilePhentsize, uint64(h.Phentsize)},
			{FilePhnum, uint64(h.Phnum)},
			{FileShentsize, uint64(h.Shentsize)},
			{FileShnum, uint64(h.Shnum)},
			{FileShstrndx, uint64(h.Shstrndx)},
		}...)
	}
	for _, fv := range fields {
		if err := c.WriteField(buf, 0, fv.f, h.Arch, fv.v); err != nil {
			return err
		}
	}
	return nil
}

// ProgramHeader is one entry of the program header table. ID is its
// position in the table.
type ProgramHeader struct {
	ID       int
	Type     uint32
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// SectionHeader is one entry of the section header table. ID is its
// position in the table, Name an offset into the section name table.
type SectionHeader struct {
	ID        int
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

func entryBase(t Table, index int) (uint64, error) {
	if index < 0 || uint64(index) >= t.Count {
		return 0, errors.Wrapf(ErrOutOfBounds, "entry %d of a %d entry table", index, t.Count)
	}
	return t.EntryOffset(index), nil
}

// DecodeProgramHeader decodes entry index of the program header table t.
func DecodeProgramHeader(buf []byte, c Codec, a Arch, t Table, index int) (ProgramHeader, error) {
	base, err := entryBase(t, index)
	if err != nil {
		return ProgramHeader{}, err
	}
	r := &fieldReader{c: c, buf: buf, base: base, arch: a}
	ph := ProgramHeader{
		ID:       index,
		Type:     uint32(r.get(ProgType)),
		Flags:    uint32(r.get(ProgFlags)),
		Offset:   r.get(ProgOffset),
		VAddr:    r.get(ProgVAddr),
		PAddr:    r.get(ProgPAddr),
		FileSize: r.get(ProgFileSize),
		MemSize:  r.get(ProgMemSize),
		Align:    r.get(ProgAlign),
	}
	if r.err != nil {
		return ProgramHeader{}, errors.Wrapf(r.err, "program header %d", index)
	}
	return ph, nil
}

// DecodeSectionHeader decodes entry index of the section header table t.
func DecodeSectionHeader(buf []byte, c Codec, a Arch, t Table, index int) (SectionHeader, error) {
	base, err := entryBase(t, index)
	if err != nil {
		return SectionHeader{}, err
	}
	r := &fieldReader{c: c, buf: buf, base: base, arch: a}
	sh := SectionHeader{
		ID:        index,
		Name:      uint32(r.get(SectName)),
		Type:      uint32(r.get(SectType)),
		Flags:     r.get(SectFlags),
		Addr:      r.get(SectAddr),
		Offset:    r.get(SectOffset),
		Size:      r.get(SectSize),
		Link:      uint32(r.get(SectLink)),
		Info:      uint32(r.get(SectInfo)),
		AddrAlign: r.get(SectAddrAlign),
		EntSize:   r.get(SectEntSize),
	}
	if r.err != nil {
		return SectionHeader{}, errors.Wrapf(r.err, "section header %d", index)
	}
	return sh, nil
}
