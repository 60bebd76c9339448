package main

import (
	"bytes"
	"context"
	"debug/elf"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Gman0064/chisel/elfbin"
	"github.com/Gman0064/chisel/internal/elftest"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	logger = log.NewNopLogger()
	os.Exit(m.Run())
}

// setup installs an in-memory filesystem holding the given files.
func setup(t *testing.T, files map[string][]byte) afero.Fs {
	t.Helper()
	prev := appFs
	fsys := afero.NewMemMapFs()
	for name, data := range files {
		require.NoError(t, afero.WriteFile(fsys, name, data, 0o755))
	}
	appFs = fsys
	t.Cleanup(func() { appFs = prev })
	return fsys
}

func standard(class elf.Class) []byte {
	raw, _ := elftest.Build(elftest.Standard(class, []byte{0x90, 0x90, 0xC3}))
	return raw
}

func run(t *testing.T, fn func(ctx context.Context) error) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := fn(withOutput(context.Background(), &out))
	return out.String(), err
}

func TestInspect(t *testing.T) {
	setup(t, map[string][]byte{"/bin/hello": standard(elf.ELFCLASS64)})

	out, err := run(t, func(ctx context.Context) error {
		return inspect(ctx, &inspectParams{files: []string{"/bin/hello"}, section: ".text"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "ELF Header:")
	require.Contains(t, out, ".note.ABI-tag")
	require.Contains(t, out, "PT_NOTE")
	require.Contains(t, out, "0x1000\tnop\n0x1001\tnop\n0x1002\tret\n")
	require.NotContains(t, out, "File:")
}

func TestInspectManyFilesInOrder(t *testing.T) {
	setup(t, map[string][]byte{
		"/a": standard(elf.ELFCLASS64),
		"/b": standard(elf.ELFCLASS32),
		"/c": standard(elf.ELFCLASS64),
	})

	out, err := run(t, func(ctx context.Context) error {
		return inspect(ctx, &inspectParams{files: []string{"/c", "/a", "/b"}, section: ".text", noDisasm: true})
	})
	require.NoError(t, err)
	c, a, b := strings.Index(out, "File: /c"), strings.Index(out, "File: /a"), strings.Index(out, "File: /b")
	require.True(t, c >= 0 && c < a && a < b, out)
	require.NotContains(t, out, "Disassembly")
}

func TestInspectFailures(t *testing.T) {
	setup(t, map[string][]byte{
		"/ok":     standard(elf.ELFCLASS64),
		"/notelf": []byte("#!/bin/sh\necho hi\n"),
	})

	for _, tc := range []struct {
		name   string
		params inspectParams
		want   error
	}{
		{"missing file", inspectParams{files: []string{"/ok", "/missing"}, section: ".text"}, ErrFileNotFound},
		{"not an ELF", inspectParams{files: []string{"/notelf"}, section: ".text"}, elfbin.ErrBadMagic},
		{"no such section", inspectParams{files: []string{"/ok"}, section: ".plt"}, elfbin.ErrSectionNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, func(ctx context.Context) error { return inspect(ctx, &tc.params) })
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, out)
		})
	}

	_, err := run(t, func(ctx context.Context) error {
		return inspect(ctx, &inspectParams{files: []string{"/ok"}, section: ".text", mode: 16})
	})
	require.Error(t, err)
}

func TestInspectModeOverride(t *testing.T) {
	raw, _ := elftest.Build(elftest.Standard(elf.ELFCLASS32, []byte{0x48, 0x31, 0xC0}))
	setup(t, map[string][]byte{"/x": raw})

	out, err := run(t, func(ctx context.Context) error {
		return inspect(ctx, &inspectParams{files: []string{"/x"}, section: ".text", mode: 64})
	})
	require.NoError(t, err)
	require.Contains(t, out, "0x1000\txor rax, rax\n")
}

func TestPatchCommand(t *testing.T) {
	original := standard(elf.ELFCLASS64)
	payload := []byte{0x90, 0x90, 0x90, 0xC3}
	fsys := setup(t, map[string][]byte{"/bin/hello": original, "/payload.bin": payload})

	out, err := run(t, func(ctx context.Context) error {
		return patch(ctx, &patchParams{file: "/bin/hello", payload: "/payload.bin", donorSection: ".note.ABI-tag", donorSegment: -1})
	})
	require.NoError(t, err)
	require.Contains(t, out, "/bin/hello.patched")

	untouched, err := afero.ReadFile(fsys, "/bin/hello")
	require.NoError(t, err)
	require.Equal(t, original, untouched)

	patched, err := afero.ReadFile(fsys, "/bin/hello.patched")
	require.NoError(t, err)
	require.Len(t, patched, len(original)+len(payload))
	f, err := elfbin.Parse(patched)
	require.NoError(t, err)
	require.Equal(t, uint64(len(original)), f.Header.Entry)

	info, err := fsys.Stat("/bin/hello.patched")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	entries, err := afero.ReadDir(fsys, "/bin")
	require.NoError(t, err)
	require.Len(t, entries, 2, "no temporary files left behind")
}

func TestPatchCommandFailures(t *testing.T) {
	fsys := setup(t, map[string][]byte{
		"/bin/hello":   standard(elf.ELFCLASS64),
		"/payload.bin": {0xC3},
		"/empty.bin":   {},
	})

	for _, tc := range []struct {
		name   string
		params patchParams
		want   error
	}{
		{"missing file", patchParams{file: "/bin/nope", payload: "/payload.bin", donorSegment: -1}, ErrFileNotFound},
		{"missing payload", patchParams{file: "/bin/hello", payload: "/nope.bin", donorSegment: -1}, ErrPayloadRead},
		{"empty payload", patchParams{file: "/bin/hello", payload: "/empty.bin", donorSegment: -1}, nil},
		{"no donor section", patchParams{file: "/bin/hello", payload: "/payload.bin", donorSection: ".comment", donorSegment: -1}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, func(ctx context.Context) error { return patch(ctx, &tc.params) })
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
			exists, err := afero.Exists(fsys, outputPath(tc.params.file, ""))
			require.NoError(t, err)
			require.False(t, exists)
		})
	}
}

func TestEditCommand(t *testing.T) {
	original := standard(elf.ELFCLASS64)
	fsys := setup(t, map[string][]byte{
		"/bin/hello": original,
		"/fix.patch": []byte("# stamp the padding\n0x9: 0xAA,0xBB\n"),
		"/bad.patch": []byte("0x9: AA\n0xFFFFFF: 00\n"),
	})

	out, err := run(t, func(ctx context.Context) error {
		return edit(ctx, &editParams{file: "/bin/hello", script: "/fix.patch", output: "/out/hello"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "applied 1 edits")

	edited, err := afero.ReadFile(fsys, "/out/hello")
	require.NoError(t, err)
	require.Len(t, edited, len(original))
	require.Equal(t, []byte{0xAA, 0xBB}, edited[9:11])
	require.Equal(t, original[:9], edited[:9])
	require.Equal(t, original[11:], edited[11:])

	_, err = run(t, func(ctx context.Context) error {
		return edit(ctx, &editParams{file: "/bin/hello", script: "/bad.patch"})
	})
	require.ErrorIs(t, err, elfbin.ErrOutOfBounds)
	exists, err := afero.Exists(fsys, "/bin/hello.patched")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestCheckError(t *testing.T) {
	require.Equal(t, 0, checkError(nil))
	require.Equal(t, 1, checkError(ErrFileNotFound))
}
