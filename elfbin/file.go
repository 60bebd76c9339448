package elfbin

import (
	"github.com/pkg/errors"
)

// File is an ELF image held fully in memory together with its decoded
// file header. Decoding never mutates Raw.
type File struct {
	Raw    []byte
	Header FileHeader
	Codec  Codec
}

// Parse decodes the file header of raw.
func Parse(raw []byte) (*File, error) {
	h, err := DecodeFileHeader(raw)
	if err != nil {
		return nil, err
	}
	return &File{Raw: raw, Header: h, Codec: CodecFor(h.Endian)}, nil
}

func (f *File) requireArch() error {
	if f.Header.Arch == Unknown {
		return errors.Wrap(ErrMalformedHeader, "unsupported architecture")
	}
	return nil
}

// ProgramHeader decodes a single program header table entry.
func (f *File) ProgramHeader(i int) (ProgramHeader, error) {
	if err := f.requireArch(); err != nil {
		return ProgramHeader{}, err
	}
	return DecodeProgramHeader(f.Raw, f.Codec, f.Header.Arch, f.Header.ProgramTable(), i)
}

// SectionHeader decodes a single section header table entry.
func (f *File) SectionHeader(i int) (SectionHeader, error) {
	if err := f.requireArch(); err != nil {
		return SectionHeader{}, err
	}
	return DecodeSectionHeader(f.Raw, f.Codec, f.Header.Arch, f.Header.SectionTable(), i)
}

// ProgramHeaders decodes the whole program header table. A table that
// does not fit in the file, or any failing entry, yields no headers.
func (f *File) ProgramHeaders() ([]ProgramHeader, error) {
	if err := f.requireArch(); err != nil {
		return nil, err
	}
	t := f.Header.ProgramTable()
	if err := t.Check(len(f.Raw)); err != nil {
		return nil, errors.Wrap(err, "program header table")
	}
	out := make([]ProgramHeader, 0, t.Count)
	for i := 0; uint64(i) < t.Count; i++ {
		ph, err := DecodeProgramHeader(f.Raw, f.Codec, f.Header.Arch, t, i)
		if err != nil {
			return nil, err
		}
		out = append(out, ph)
	}
	return out, nil
}

// SectionHeaders decodes the whole section header table, with the same
// all-or-nothing policy as ProgramHeaders.
func (f *File) SectionHeaders() ([]SectionHeader, error) {
	if err := f.requireArch(); err != nil {
		return nil, err
	}
	t := f.Header.SectionTable()
	if err := t.Check(len(f.Raw)); err != nil {
		return nil, errors.Wrap(err, "section header table")
	}
	out := make([]SectionHeader, 0, t.Count)
	for i := 0; uint64(i) < t.Count; i++ {
		sh, err := DecodeSectionHeader(f.Raw, f.Codec, f.Header.Arch, t, i)
		if err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, nil
}

// SectionData returns the file bytes covered by sh. The slice aliases Raw.
func (f *File) SectionData(sh SectionHeader) ([]byte, error) {
	end := sh.Offset + sh.Size
	if end < sh.Offset || end > uint64(len(f.Raw)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "section %d spans 0x%x-0x%x, file is %d bytes", sh.ID, sh.Offset, end, len(f.Raw))
	}
	return f.Raw[sh.Offset:end], nil
}
