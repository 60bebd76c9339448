package elfbin

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field names one fixed-position integer in a file, program or section header.
type Field uint8

const (
	FileClass Field = iota
	FileData
	FileIdentVersion
	FileOSABI
	FileABIVersion
	FileType
	FileMachine
	FileVersion
	FileEntry
	FilePhoff
	FileShoff
	FileFlags
	FileEhsize
	FilePhentsize
	FilePhnum
	FileShentsize
	FileShnum
	FileShstrndx

	ProgType
	ProgFlags
	ProgOffset
	ProgVAddr
	ProgPAddr
	ProgFileSize
	ProgMemSize
	ProgAlign

	SectName
	SectType
	SectFlags
	SectAddr
	SectOffset
	SectSize
	SectLink
	SectInfo
	SectAddrAlign
	SectEntSize
)

var fieldNames = [...]string{
	FileClass:        "ei_class",
	FileData:         "ei_data",
	FileIdentVersion: "ei_version",
	FileOSABI:        "ei_osabi",
	FileABIVersion:   "ei_abiversion",
	FileType:         "e_type",
	FileMachine:      "e_machine",
	FileVersion:      "e_version",
	FileEntry:        "e_entry",
	FilePhoff:        "e_phoff",
	FileShoff:        "e_shoff",
	FileFlags:        "e_flags",
	FileEhsize:       "e_ehsize",
	FilePhentsize:    "e_phentsize",
	FilePhnum:        "e_phnum",
	FileShentsize:    "e_shentsize",
	FileShnum:        "e_shnum",
	FileShstrndx:     "e_shstrndx",
	ProgType:         "p_type",
	ProgFlags:        "p_flags",
	ProgOffset:       "p_offset",
	ProgVAddr:        "p_vaddr",
	ProgPAddr:        "p_paddr",
	ProgFileSize:     "p_filesz",
	ProgMemSize:      "p_memsz",
	ProgAlign:        "p_align",
	SectName:         "sh_name",
	SectType:         "sh_type",
	SectFlags:        "sh_flags",
	SectAddr:         "sh_addr",
	SectOffset:       "sh_offset",
	SectSize:         "sh_size",
	SectLink:         "sh_link",
	SectInfo:         "sh_info",
	SectAddrAlign:    "sh_addralign",
	SectEntSize:      "sh_entsize",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Minimal sizes of the file header and of one table entry per layout.
const (
	fileHeaderSize32 = 0x34
	fileHeaderSize64 = 0x40
	progHeaderSize32 = 0x20
	progHeaderSize64 = 0x38
	sectHeaderSize32 = 0x28
	sectHeaderSize64 = 0x40
)

// FileHeaderSize is the size of the file header for the given layout.
func FileHeaderSize(a Arch) int {
	if a == X86_64 {
		return fileHeaderSize64
	}
	return fileHeaderSize32
}

// OffsetFor returns the offset (relative to the start of its header) and
// the width in bytes of f in the layout selected by a. The identification
// bytes are the same in both layouts and resolve for any architecture.
func OffsetFor(f Field, a Arch) (uint64, int, error) {
	switch f {
	case FileClass:
		return 0x04, 1, nil
	case FileData:
		return 0x05, 1, nil
	case FileIdentVersion:
		return 0x06, 1, nil
	case FileOSABI:
		return 0x07, 1, nil
	case FileABIVersion:
		return 0x08, 1, nil
	case FileType:
		return 0x10, 2, nil
	case FileMachine:
		return 0x12, 2, nil
	case FileVersion:
		return 0x14, 4, nil
	}

	if a != X86 && a != X86_64 {
		return 0, 0, errors.Wrapf(ErrMalformedHeader, "no %s layout for %s architecture", f, a)
	}
	wide := a == X86_64
	// word is the size of an address or offset in this layout.
	word := 4
	if wide {
		word = 8
	}
	pick := func(off32, off64 uint64) uint64 {
		if wide {
			return off64
		}
		return off32
	}

	switch f {
	case FileEntry:
		return 0x18, word, nil
	case FilePhoff:
		return pick(0x1C, 0x20), word, nil
	case FileShoff:
		return pick(0x20, 0x28), word, nil
	case FileFlags:
		return pick(0x24, 0x30), 4, nil
	case FileEhsize:
		return pick(0x28, 0x34), 2, nil
	case FilePhentsize:
		return pick(0x2A, 0x36), 2, nil
	case FilePhnum:
		return pick(0x2C, 0x38), 2, nil
	case FileShentsize:
		return pick(0x2E, 0x3A), 2, nil
	case FileShnum:
		return pick(0x30, 0x3C), 2, nil
	case FileShstrndx:
		return pick(0x32, 0x3E), 2, nil

	// p_flags moves next to p_type in the 64-bit layout to keep the
	// 8-byte fields aligned.
	case ProgType:
		return 0x00, 4, nil
	case ProgFlags:
		return pick(0x18, 0x04), 4, nil
	case ProgOffset:
		return pick(0x04, 0x08), word, nil
	case ProgVAddr:
		return pick(0x08, 0x10), word, nil
	case ProgPAddr:
		return pick(0x0C, 0x18), word, nil
	case ProgFileSize:
		return pick(0x10, 0x20), word, nil
	case ProgMemSize:
		return pick(0x14, 0x28), word, nil
	case ProgAlign:
		return pick(0x1C, 0x30), word, nil

	case SectName:
		return 0x00, 4, nil
	case SectType:
		return 0x04, 4, nil
	case SectFlags:
		return 0x08, word, nil
	case SectAddr:
		return pick(0x0C, 0x10), word, nil
	case SectOffset:
		return pick(0x10, 0x18), word, nil
	case SectSize:
		return pick(0x14, 0x20), word, nil
	case SectLink:
		return pick(0x18, 0x28), 4, nil
	case SectInfo:
		return pick(0x1C, 0x2C), 4, nil
	case SectAddrAlign:
		return pick(0x20, 0x30), word, nil
	case SectEntSize:
		return pick(0x24, 0x38), word, nil
	}
	return 0, 0, errors.Errorf("unknown field %s", f)
}

// ReadField reads f from the header starting at base.
func (c Codec) ReadField(buf []byte, base uint64, f Field, a Arch) (uint64, error) {
	off, width, err := OffsetFor(f, a)
	if err != nil {
		return 0, err
	}
	v, err := c.Word(buf, base+off, width)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", f)
	}
	return v, nil
}

// WriteField overwrites f in the header starting at base.
func (c Codec) WriteField(buf []byte, base uint64, f Field, a Arch, v uint64) error {
	off, width, err := OffsetFor(f, a)
	if err != nil {
		return err
	}
	if err := c.PutWord(buf, base+off, width, v); err != nil {
		return errors.Wrapf(err, "write %s", f)
	}
	return nil
}
