package patcher

import (
	"bufio"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/Gman0064/chisel/elfbin"
)

var ErrBadScript = errors.New("bad patch script")

// Edit overwrites len(Data) bytes at file offset Offset.
type Edit struct {
	Line   int
	Offset uint64
	Data   []byte
}

// ParseScript reads a patch script. Each line is
//
//	ADDRESS: HEX[,HEX...]
//	ADDRESS: "text"
//
// where ADDRESS is a file offset in decimal or 0x-prefixed hex. Blank
// lines and lines starting with # are ignored.
func ParseScript(r io.Reader) ([]Edit, error) {
	var edits []Edit
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		addr, data, ok := strings.Cut(text, ":")
		if !ok {
			return nil, errors.Wrapf(ErrBadScript, "line %d: missing ':'", line)
		}
		off, err := strconv.ParseUint(strings.TrimSpace(addr), 0, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrBadScript, "line %d: address %q", line, strings.TrimSpace(addr))
		}
		payload, err := parseData(strings.TrimSpace(data))
		if err != nil {
			return nil, errors.Wrapf(ErrBadScript, "line %d: %v", line, err)
		}
		edits = append(edits, Edit{Line: line, Offset: off, Data: payload})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read patch script")
	}
	return edits, nil
}

func parseData(data string) ([]byte, error) {
	if data == "" {
		return nil, errors.New("no data")
	}
	if strings.HasPrefix(data, `"`) {
		s, err := strconv.Unquote(data)
		if err != nil {
			return nil, errors.Errorf("string literal %s", data)
		}
		if s == "" {
			return nil, errors.New("empty string")
		}
		return []byte(s), nil
	}
	var digits strings.Builder
	for _, tok := range strings.Split(data, ",") {
		tok = strings.TrimSpace(tok)
		tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
		digits.WriteString(tok)
	}
	b, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, errors.Wrap(err, "hex bytes")
	}
	if len(b) == 0 {
		return nil, errors.New("no data")
	}
	return b, nil
}

// ApplyEdits writes every edit into image in place. All edits are checked
// against the image size first, so either all of them are applied or none.
func ApplyEdits(image []byte, edits []Edit) error {
	for _, e := range edits {
		end := e.Offset + uint64(len(e.Data))
		if end < e.Offset || end > uint64(len(image)) {
			return errors.Wrapf(elfbin.ErrOutOfBounds, "line %d: %d bytes at 0x%x, image is %d bytes", e.Line, len(e.Data), e.Offset, len(image))
		}
	}
	for _, e := range edits {
		copy(image[e.Offset:], e.Data)
	}
	return nil
}
