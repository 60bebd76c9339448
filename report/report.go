// Package report renders decoded ELF structures as text.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/Gman0064/chisel/disasm"
	"github.com/Gman0064/chisel/elfbin"
)

var (
	titleClr = color.New(color.FgGreen, color.Bold)
	noteClr  = color.New(color.FgYellow)
)

func title(w io.Writer, s string) {
	titleClr.Fprintln(w, s)
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

// size shows the exact byte count with a rounded hint next to it.
func size(v uint64) string {
	return fmt.Sprintf("%#x (%s)", v, humanize.Bytes(v))
}

// Header prints the file header as a two column table. Only the
// identification bytes are shown when the class is not understood; the
// inspect command never gets that far, since it needs the tables too, so
// only library callers see that form.
func Header(w io.Writer, h elfbin.FileHeader) {
	title(w, "ELF Header:")
	table := newTable(w)
	table.SetBorder(false)
	table.SetColumnSeparator(":")

	table.Append([]string{"Class", h.Arch.String()})
	table.Append([]string{"Data", h.Endian.String()})
	table.Append([]string{"Version", strconv.Itoa(int(h.IdentVersion))})
	table.Append([]string{"OS/ABI", elfbin.ABIName(h.OSABI)})
	table.Append([]string{"ABI Version", strconv.Itoa(int(h.ABIVersion))})
	if h.Arch == elfbin.Unknown {
		table.Render()
		noteClr.Fprintln(w, "unsupported class, remaining header fields not decoded")
		return
	}
	table.Append([]string{"Type", elfbin.TypeName(h.Type)})
	table.Append([]string{"Machine", elfbin.MachineName(h.Machine)})
	table.Append([]string{"Entry point", hex(h.Entry)})
	table.Append([]string{"Program headers", fmt.Sprintf("%d x %d bytes at %#x", h.Phnum, h.Phentsize, h.Phoff)})
	table.Append([]string{"Section headers", fmt.Sprintf("%d x %d bytes at %#x", h.Shnum, h.Shentsize, h.Shoff)})
	table.Append([]string{"Section names index", strconv.Itoa(int(h.Shstrndx))})
	table.Append([]string{"Flags", hex(uint64(h.Flags))})
	table.Append([]string{"Header size", size(uint64(h.Ehsize))})
	table.Render()
}

// Sections prints the section header table.
func Sections(w io.Writer, sections []elfbin.Section) {
	title(w, "Section Headers:")
	table := newTable(w)
	table.SetHeader([]string{"Nr", "Name", "Type", "Flags", "Address", "Offset", "Size", "Link", "Info", "Align"})
	for _, s := range sections {
		table.Append([]string{
			strconv.Itoa(s.ID),
			s.Name,
			elfbin.SectionTypeName(s.Type),
			elfbin.SectionFlags(s.Flags),
			hex(s.Addr),
			hex(s.Offset),
			size(s.Size),
			strconv.FormatUint(uint64(s.Link), 10),
			strconv.FormatUint(uint64(s.Info), 10),
			strconv.FormatUint(s.AddrAlign, 10),
		})
	}
	table.Render()
}

// Programs prints the program header table.
func Programs(w io.Writer, headers []elfbin.ProgramHeader) {
	title(w, "Program Headers:")
	table := newTable(w)
	table.SetHeader([]string{"Nr", "Type", "Flags", "Offset", "VirtAddr", "PhysAddr", "FileSiz", "MemSiz", "Align"})
	for _, ph := range headers {
		table.Append([]string{
			strconv.Itoa(ph.ID),
			elfbin.SegmentTypeName(ph.Type),
			elfbin.SegmentFlags(ph.Flags),
			hex(ph.Offset),
			hex(ph.VAddr),
			hex(ph.PAddr),
			size(ph.FileSize),
			size(ph.MemSize),
			hex(ph.Align),
		})
	}
	table.Render()
}

// Listing prints one "address<TAB>instruction" line per instruction of a
// section mapped at base. remainder is the count of trailing bytes the
// sweep could not decode.
func Listing(w io.Writer, section string, base uint64, insts []disasm.Instruction, remainder int, branchTargets bool) {
	title(w, fmt.Sprintf("Disassembly of %s:", section))
	end := base
	for _, in := range insts {
		if branchTargets && in.Branch {
			fmt.Fprintf(w, "%#x\t%s\t; -> %#x\n", in.Addr, in.Text, in.Target)
		} else {
			fmt.Fprintf(w, "%#x\t%s\n", in.Addr, in.Text)
		}
		end = in.Addr + uint64(in.Len)
	}
	if remainder > 0 {
		noteClr.Fprintf(w, "; %d undecodable bytes at %#x\n", remainder, end)
	}
}
