package elfbin

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ResolveName returns the zero-terminated string starting at index in a
// string table.
func ResolveName(strtab []byte, index uint32) (string, error) {
	if uint64(index) >= uint64(len(strtab)) {
		return "", errors.Wrapf(ErrInvalidName, "index %d outside string table of %d bytes", index, len(strtab))
	}
	n := bytes.IndexByte(strtab[index:], 0)
	if n < 0 {
		return "", errors.Wrapf(ErrInvalidName, "no terminator after index %d", index)
	}
	name := strtab[index : int(index)+n]
	if !utf8.Valid(name) {
		return "", errors.Wrapf(ErrInvalidName, "name at index %d is not valid UTF-8", index)
	}
	return string(name), nil
}

// StringTable returns the contents of the section name table. Its header
// is decoded on its own, without walking the rest of the section table.
// An image without one (e_shstrndx == SHN_UNDEF) has an empty table.
func (f *File) StringTable() ([]byte, error) {
	h := f.Header
	if h.Shstrndx == 0 {
		return nil, nil
	}
	if h.Shstrndx >= h.Shnum {
		return nil, errors.Wrapf(ErrMalformedHeader, "e_shstrndx %d outside section table of %d entries", h.Shstrndx, h.Shnum)
	}
	sh, err := f.SectionHeader(int(h.Shstrndx))
	if err != nil {
		return nil, errors.Wrap(err, "section name table header")
	}
	data, err := f.SectionData(sh)
	if err != nil {
		return nil, errors.Wrap(err, "section name table")
	}
	return data, nil
}

// Section is a section header together with its resolved name.
type Section struct {
	Name string
	SectionHeader
}

// Sections decodes the section table and resolves every name, in table order.
func (f *File) Sections() ([]Section, error) {
	headers, err := f.SectionHeaders()
	if err != nil {
		return nil, err
	}
	strtab, err := f.StringTable()
	if err != nil {
		return nil, err
	}
	out := make([]Section, 0, len(headers))
	for _, sh := range headers {
		var name string
		if f.Header.Shstrndx != 0 {
			name, err = ResolveName(strtab, sh.Name)
			if err != nil {
				return nil, errors.Wrapf(err, "section %d", sh.ID)
			}
		}
		out = append(out, Section{Name: name, SectionHeader: sh})
	}
	return out, nil
}

// SectionMap indexes section headers by name. A later section with the
// same name replaces an earlier one.
type SectionMap map[string]SectionHeader

// NewSectionMap indexes sections by name.
func NewSectionMap(sections []Section) SectionMap {
	m := make(SectionMap, len(sections))
	for _, s := range sections {
		m[s.Name] = s.SectionHeader
	}
	return m
}

// Lookup returns the section called name.
func (m SectionMap) Lookup(name string) (SectionHeader, error) {
	sh, ok := m[name]
	if !ok {
		return SectionHeader{}, errors.Wrap(ErrSectionNotFound, name)
	}
	return sh, nil
}

// SectionMap decodes the section table and indexes it by name.
func (f *File) SectionMap() (SectionMap, error) {
	sections, err := f.Sections()
	if err != nil {
		return nil, err
	}
	return NewSectionMap(sections), nil
}
