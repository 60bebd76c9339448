package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Gman0064/chisel/disasm"
	"github.com/Gman0064/chisel/elfbin"
	"github.com/Gman0064/chisel/patcher"
	"github.com/Gman0064/chisel/report"
)

type inspectParams struct {
	files         []string
	section       string
	mode          int
	noDisasm      bool
	branchTargets bool
}

type patchParams struct {
	file         string
	payload      string
	output       string
	donorSection string
	donorSegment int
}

type editParams struct {
	file   string
	script string
	output string
}

// inspection is everything decoded from one file, ready to render.
type inspection struct {
	header    elfbin.FileHeader
	sections  []elfbin.Section
	programs  []elfbin.ProgramHeader
	listing   bool
	base      uint64
	insts     []disasm.Instruction
	remainder int
}

// inspect decodes every file concurrently and prints the reports in
// argument order. Nothing is printed if any file fails.
func inspect(ctx context.Context, p *inspectParams) error {
	switch p.mode {
	case 0, 32, 64:
	default:
		return errors.Errorf("inspect: --mode must be 0, 32 or 64, got %d", p.mode)
	}

	results := make([]inspection, len(p.files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range p.files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := inspectFile(path, p)
			if err != nil {
				return errors.Wrap(err, "inspect "+path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := output(ctx)
	for i, res := range results {
		if len(p.files) > 1 {
			fmt.Fprintf(out, "\nFile: %s\n", p.files[i])
		}
		report.Header(out, res.header)
		report.Sections(out, res.sections)
		report.Programs(out, res.programs)
		if res.listing {
			report.Listing(out, p.section, res.base, res.insts, res.remainder, p.branchTargets)
		}
	}
	return nil
}

func inspectFile(path string, p *inspectParams) (inspection, error) {
	f, _, err := loadELF(appFs, path)
	if err != nil {
		return inspection{}, err
	}
	res := inspection{header: f.Header}

	if res.sections, err = f.Sections(); err != nil {
		return inspection{}, errors.Wrap(err, "decode sections")
	}
	if res.programs, err = f.ProgramHeaders(); err != nil {
		return inspection{}, errors.Wrap(err, "decode program headers")
	}
	level.Debug(logger).Log("msg", "decoded tables", "file", path, "sections", len(res.sections), "programs", len(res.programs))
	if p.noDisasm {
		return res, nil
	}

	mode := p.mode
	if mode == 0 {
		if mode, err = disasm.ModeFor(f.Header.Arch); err != nil {
			return inspection{}, errors.Wrap(err, "disassemble")
		}
	}
	sect, err := elfbin.NewSectionMap(res.sections).Lookup(p.section)
	if err != nil {
		return inspection{}, errors.Wrap(err, "disassemble")
	}
	code, err := f.SectionData(sect)
	if err != nil {
		return inspection{}, errors.Wrap(err, "disassemble "+p.section)
	}

	res.listing = true
	res.base = sect.Addr
	res.insts, res.remainder = disasm.Disassemble(disasm.X86{Mode: mode}, code, sect.Addr)
	level.Debug(logger).Log("msg", "disassembled", "file", path, "section", p.section, "instructions", len(res.insts), "undecoded", res.remainder)
	return res, nil
}

func patch(ctx context.Context, p *patchParams) error {
	f, perm, err := loadELF(appFs, p.file)
	if err != nil {
		return errors.Wrap(err, "patch")
	}
	payload, err := readPayload(appFs, p.payload)
	if err != nil {
		return errors.Wrap(err, "patch")
	}

	pt := patcher.New(logger)
	if p.donorSection != "" {
		pt.DonorSection = p.donorSection
	}
	res, err := pt.PatchFile(f, payload, p.donorSegment)
	if err != nil {
		return errors.Wrap(err, "patch "+p.file)
	}

	dst := outputPath(p.file, p.output)
	if err := writeFile(appFs, dst, res.Image, perm); err != nil {
		return errors.Wrap(err, "patch")
	}
	fmt.Fprintf(output(ctx), "%s: injected %s at %#x, entry point now %#x\n",
		dst, humanize.Bytes(uint64(len(payload))), res.InjectionOffset, res.InjectionOffset)
	return nil
}

func edit(ctx context.Context, p *editParams) error {
	image, perm, err := loadFile(appFs, p.file)
	if err != nil {
		return errors.Wrap(err, "edit")
	}
	script, _, err := loadFile(appFs, p.script)
	if err != nil {
		return errors.Wrap(err, "edit")
	}
	edits, err := patcher.ParseScript(bytes.NewReader(script))
	if err != nil {
		return errors.Wrap(err, "edit "+p.script)
	}
	if err := patcher.ApplyEdits(image, edits); err != nil {
		return errors.Wrap(err, "edit "+p.file)
	}
	for _, e := range edits {
		level.Info(logger).Log("msg", "applied edit", "line", e.Line, "offset", fmt.Sprintf("%#x", e.Offset), "bytes", len(e.Data))
	}

	dst := outputPath(p.file, p.output)
	if err := writeFile(appFs, dst, image, perm); err != nil {
		return errors.Wrap(err, "edit")
	}
	fmt.Fprintf(output(ctx), "%s: applied %d edits\n", dst, len(edits))
	return nil
}
