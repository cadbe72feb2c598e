// Package devicetree loads the device tree handed to the emulator before a
// run: DTS source text or a flattened DTB blob, optionally inside an archive.
package devicetree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format of a loaded device tree.
type Format int

const (
	FormatDTS Format = iota + 1
	FormatDTB
)

func (f Format) String() string {
	switch f {
	case FormatDTS:
		return "dts"
	case FormatDTB:
		return "dtb"
	default:
		return "unknown"
	}
}

// MaxSize caps a device tree, archived or not.
const MaxSize = 1 << 20

// dtbMagic opens every flattened device tree blob (big-endian)
const dtbMagic = 0xd00dfeed

// fdt header: magic, totalsize, then offsets; version lives at offset 20
const dtbHeaderSize = 40

// Extensions recognized inside archives.
var Extensions = []string{".dts", ".dtb"}

var (
	ErrEmpty        = errors.New("devicetree: empty")
	ErrTooLarge     = errors.New("devicetree: exceeds size limit")
	ErrNotFound     = errors.New("devicetree: no .dts or .dtb in archive")
	ErrUnrecognized = errors.New("devicetree: not a device tree")
)

// ParseError describes why a candidate file was rejected.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Source is a validated device tree.
type Source struct {
	Name   string
	Format Format
	Data   []byte
}

// Bytes returns what the native core receives: DTS text gets a trailing
// NUL, DTB blobs are passed as-is.
func (s *Source) Bytes() []byte {
	if s.Format == FormatDTS {
		out := make([]byte, len(s.Data)+1)
		copy(out, s.Data)
		return out
	}
	return append([]byte(nil), s.Data...)
}

// Load reads a device tree from path, unpacking zip, gzip/tar.gz, 7z and
// rar archives.
func Load(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device tree: %w", err)
	}
	defer f.Close()

	header := make([]byte, 16)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read device tree header: %w", err)
	}
	header = header[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek device tree: %w", err)
	}

	var name string
	var data []byte
	switch detectContainer(header, path) {
	case containerZIP:
		data, name, err = treeFromZIP(path)
	case container7z:
		data, name, err = treeFrom7z(path)
	case containerGzip:
		data, name, err = treeFromGzip(f, path)
	case containerRAR:
		data, name, err = treeFromRAR(path)
	default:
		name = filepath.Base(path)
		data, err = limitedRead(f)
	}
	if err != nil {
		return nil, err
	}
	return Parse(name, data)
}

// Parse validates data as DTS or DTB. The name's extension is a hint;
// content decides.
func Parse(name string, data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, &ParseError{Name: name, Err: ErrEmpty}
	}
	if len(data) > MaxSize {
		return nil, &ParseError{Name: name, Err: ErrTooLarge}
	}
	if len(data) >= 4 && binary.BigEndian.Uint32(data) == dtbMagic {
		if err := checkDTB(data); err != nil {
			return nil, &ParseError{Name: name, Err: err}
		}
		return &Source{Name: name, Format: FormatDTB, Data: append([]byte(nil), data...)}, nil
	}
	if err := checkDTS(data); err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}
	// drop a trailing NUL the editor may have left; Bytes adds one back
	data = bytes.TrimRight(data, "\x00")
	return &Source{Name: name, Format: FormatDTS, Data: append([]byte(nil), data...)}, nil
}

func checkDTB(data []byte) error {
	if len(data) < dtbHeaderSize {
		return fmt.Errorf("%w: dtb header truncated (%d bytes)", ErrUnrecognized, len(data))
	}
	total := binary.BigEndian.Uint32(data[4:8])
	if total < dtbHeaderSize || int(total) > len(data) {
		return fmt.Errorf("%w: dtb totalsize %d, have %d bytes", ErrUnrecognized, total, len(data))
	}
	return nil
}

// checkDTS requires the /dts-v1/ tag before any other token.
func checkDTS(data []byte) error {
	s := string(data)
	for {
		s = strings.TrimLeft(s, " \t\r\n\ufeff")
		switch {
		case strings.HasPrefix(s, "//"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			s = ""
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s[2:], "*/"); i >= 0 {
				s = s[i+4:]
				continue
			}
			return fmt.Errorf("%w: unterminated comment", ErrUnrecognized)
		}
		break
	}
	if !strings.HasPrefix(s, "/dts-v1/") {
		return fmt.Errorf("%w: missing /dts-v1/ tag", ErrUnrecognized)
	}
	return nil
}

func isDeviceTreeFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func limitedRead(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
