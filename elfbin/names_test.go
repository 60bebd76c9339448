package elfbin

import (
	"debug/elf"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gman0064/chisel/internal/elftest"
)

func TestResolveName(t *testing.T) {
	strtab := []byte("\x00.text\x00.data\x00\xff\xfe\x00.tail")

	for _, tc := range []struct {
		name  string
		index uint32
		want  string
		err   error
	}{
		{"empty name", 0, "", nil},
		{"first", 1, ".text", nil},
		{"second", 7, ".data", nil},
		{"suffix of a name", 2, "text", nil},
		{"invalid utf-8", 13, "", ErrInvalidName},
		{"unterminated", 16, "", ErrInvalidName},
		{"index past end", 100, "", ErrInvalidName},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveName(strtab, tc.index)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			again, err := ResolveName(strtab, tc.index)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestSectionsResolveNames(t *testing.T) {
	raw, _ := elftest.Build(elftest.Standard(elf.ELFCLASS64, nopNopRet))
	f, err := Parse(raw)
	require.NoError(t, err)

	sections, err := f.Sections()
	require.NoError(t, err)

	var names []string
	for _, s := range sections {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"", ".note.ABI-tag", ".text", ".data", ".shstrtab"}, names)

	m := NewSectionMap(sections)
	text, err := m.Lookup(".text")
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), text.Addr)
	require.Equal(t, uint64(len(nopNopRet)), text.Size)

	_, err = m.Lookup(".bss")
	require.ErrorIs(t, err, ErrSectionNotFound)
}

func TestSectionMapDuplicatesOverwrite(t *testing.T) {
	m := NewSectionMap([]Section{
		{Name: ".dup", SectionHeader: SectionHeader{ID: 1}},
		{Name: ".dup", SectionHeader: SectionHeader{ID: 2}},
	})
	require.Len(t, m, 1)
	require.Equal(t, 2, m[".dup"].ID)
}

func TestSectionsWithoutNameTable(t *testing.T) {
	img := elftest.Standard(elf.ELFCLASS32, nopNopRet)
	img.NoNames = true
	raw, _ := elftest.Build(img)
	f, err := Parse(raw)
	require.NoError(t, err)

	sections, err := f.Sections()
	require.NoError(t, err)
	require.Len(t, sections, 4)
	for _, s := range sections {
		require.Empty(t, s.Name)
	}
}

func TestStringTableIndexOutsideTable(t *testing.T) {
	raw, _ := elftest.Build(elftest.Standard(elf.ELFCLASS64, nopNopRet))
	f, err := Parse(raw)
	require.NoError(t, err)
	require.NoError(t, f.Codec.WriteField(raw, 0, FileShstrndx, X86_64, uint64(f.Header.Shnum)))

	f, err = Parse(raw)
	require.NoError(t, err)
	_, err = f.SectionMap()
	require.ErrorIs(t, err, ErrMalformedHeader)
}

func TestCorruptNameIndex(t *testing.T) {
	raw, _ := elftest.Build(elftest.Standard(elf.ELFCLASS64, nopNopRet))
	f, err := Parse(raw)
	require.NoError(t, err)

	// Point .text's sh_name far outside .shstrtab.
	base := f.Header.SectionTable().EntryOffset(2)
	require.NoError(t, f.Codec.WriteField(raw, base, SectName, X86_64, 0xFFFF))

	_, err = f.Sections()
	require.ErrorIs(t, err, ErrInvalidName)
}
