// Package patcher rewrites ELF images in place.
package patcher

import (
	"debug/elf"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/Gman0064/chisel/elfbin"
)

// DefaultDonorSection is present in ordinary executables and is not
// needed at run time.
const DefaultDonorSection = ".note.ABI-tag"

// Alignment given to the injected PT_LOAD segment.
const segmentAlign = 0x1000

var (
	ErrDonorSectionMissing = errors.New("donor section missing")
	ErrDonorSegmentMissing = errors.New("donor segment missing")
	ErrEmptyPayload        = errors.New("empty payload")
)

// Rewrite records one overwritten header field.
type Rewrite struct {
	Target string
	Field  elfbin.Field
	Offset uint64
	Value  uint64
}

// Result is a patched image.
type Result struct {
	Image           []byte
	InjectionOffset uint64
	Rewrites        []Rewrite
}

// Patcher injects payloads by taking over a donor section header and a
// PT_NOTE program header instead of growing either table, so no existing
// file offset ever moves.
type Patcher struct {
	Logger       log.Logger
	DonorSection string
}

// New returns a Patcher using the default donor section. A nil logger
// discards output.
func New(logger log.Logger) *Patcher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Patcher{Logger: logger, DonorSection: DefaultDonorSection}
}

// FindDonorSegment returns the first PT_NOTE program header.
func FindDonorSegment(headers []elfbin.ProgramHeader) (elfbin.ProgramHeader, error) {
	for _, ph := range headers {
		if elf.ProgType(ph.Type) == elf.PT_NOTE {
			return ph, nil
		}
	}
	return elfbin.ProgramHeader{}, errors.Wrap(ErrDonorSegmentMissing, "no PT_NOTE program header")
}

// Patch appends payload to a copy of original and makes it the entry
// point:
//
//  1. the payload goes at the end of the file, at the injection offset;
//  2. the donor section becomes SHT_PROGBITS covering the payload;
//  3. the donor segment becomes a R+X PT_LOAD covering the payload;
//  4. e_entry is set to the injection offset.
//
// Addresses are set equal to the file offset and e_entry receives that
// offset, so the result only runs where the image is mapped at its file
// offsets (non-PIE, zero base). original is never modified and nothing
// is returned on error.
func (p *Patcher) Patch(original, payload []byte, hdr elfbin.FileHeader, sections elfbin.SectionMap, donor elfbin.ProgramHeader) (Result, error) {
	if len(payload) == 0 {
		return Result{}, ErrEmptyPayload
	}
	name := p.DonorSection
	if name == "" {
		name = DefaultDonorSection
	}
	sect, ok := sections[name]
	if !ok {
		return Result{}, errors.Wrap(ErrDonorSectionMissing, name)
	}
	if elf.ProgType(donor.Type) != elf.PT_NOTE {
		return Result{}, errors.Wrapf(ErrDonorSegmentMissing, "program header %d is %s, not PT_NOTE", donor.ID, elfbin.SegmentTypeName(donor.Type))
	}
	if hdr.Arch == elfbin.Unknown {
		return Result{}, errors.Wrap(elfbin.ErrMalformedHeader, "unsupported architecture")
	}

	// Every offset below is fixed before the payload is appended.
	injection := uint64(len(original))
	size := uint64(len(payload))
	sectBase := hdr.SectionTable().EntryOffset(sect.ID)
	segBase := hdr.ProgramTable().EntryOffset(donor.ID)

	image := make([]byte, 0, len(original)+len(payload))
	image = append(image, original...)
	image = append(image, payload...)

	w := &rewriter{
		codec: elfbin.CodecFor(hdr.Endian),
		arch:  hdr.Arch,
		image: image,
	}

	w.set(name, sectBase, elfbin.SectType, uint64(elf.SHT_PROGBITS))
	w.set(name, sectBase, elfbin.SectAddr, injection)
	w.set(name, sectBase, elfbin.SectOffset, injection)
	w.set(name, sectBase, elfbin.SectSize, size)

	seg := elfbin.SegmentTypeName(donor.Type)
	w.set(seg, segBase, elfbin.ProgType, uint64(elf.PT_LOAD))
	w.set(seg, segBase, elfbin.ProgOffset, injection)
	w.set(seg, segBase, elfbin.ProgVAddr, injection)
	w.set(seg, segBase, elfbin.ProgPAddr, injection)
	w.set(seg, segBase, elfbin.ProgFileSize, size)
	w.set(seg, segBase, elfbin.ProgMemSize, size)
	w.set(seg, segBase, elfbin.ProgFlags, uint64(elf.PF_R|elf.PF_X))
	w.set(seg, segBase, elfbin.ProgAlign, segmentAlign)

	w.set("file header", 0, elfbin.FileEntry, injection)

	if w.err != nil {
		return Result{}, w.err
	}

	for _, r := range w.rewrites {
		level.Info(p.Logger).Log("msg", "rewrote field", "target", r.Target, "field", r.Field, "offset", hexValue(r.Offset), "value", hexValue(r.Value))
	}
	level.Debug(p.Logger).Log("msg", "payload injected", "offset", hexValue(injection), "size", size, "image_size", len(image))

	return Result{Image: image, InjectionOffset: injection, Rewrites: w.rewrites}, nil
}

// rewriter applies field writes until the first failure.
type rewriter struct {
	codec    elfbin.Codec
	arch     elfbin.Arch
	image    []byte
	rewrites []Rewrite
	err      error
}

func (w *rewriter) set(target string, base uint64, f elfbin.Field, v uint64) {
	if w.err != nil {
		return
	}
	if err := w.codec.WriteField(w.image, base, f, w.arch, v); err != nil {
		w.err = errors.Wrap(err, target)
		return
	}
	off, _, _ := elfbin.OffsetFor(f, w.arch)
	w.rewrites = append(w.rewrites, Rewrite{Target: target, Field: f, Offset: base + off, Value: v})
}

func hexValue(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// PatchFile decodes the section map and the donor segment of f and
// patches it. A negative donorSegment selects the first PT_NOTE.
func (p *Patcher) PatchFile(f *elfbin.File, payload []byte, donorSegment int) (Result, error) {
	sections, err := f.SectionMap()
	if err != nil {
		return Result{}, errors.Wrap(err, "decode sections")
	}
	var donor elfbin.ProgramHeader
	if donorSegment < 0 {
		headers, err := f.ProgramHeaders()
		if err != nil {
			return Result{}, errors.Wrap(err, "decode program headers")
		}
		if donor, err = FindDonorSegment(headers); err != nil {
			return Result{}, err
		}
	} else {
		if donor, err = f.ProgramHeader(donorSegment); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrDonorSegmentMissing, err)
		}
	}
	return p.Patch(f.Raw, payload, f.Header, sections, donor)
}
