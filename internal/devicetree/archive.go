package devicetree

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

type container int

const (
	containerNone container = iota
	containerZIP
	container7z
	containerGzip
	containerRAR
)

func (c container) String() string {
	switch c {
	case containerZIP:
		return "zip"
	case container7z:
		return "7z"
	case containerGzip:
		return "gzip"
	case containerRAR:
		return "rar"
	}
	return "plain"
}

var (
	magicZIP    = []byte{0x50, 0x4B, 0x03, 0x04}
	magicZIPEnd = []byte{0x50, 0x4B, 0x05, 0x06}
	magic7z     = []byte{0x37, 0x7A, 0xBC, 0xAF, 0x27, 0x1C}
	magicGzip   = []byte{0x1F, 0x8B}
	magicRAR    = []byte{0x52, 0x61, 0x72, 0x21}
)

// detectContainer prefers magic bytes and falls back to the extension.
func detectContainer(header []byte, path string) container {
	switch {
	case bytes.HasPrefix(header, magicZIP), bytes.HasPrefix(header, magicZIPEnd):
		return containerZIP
	case bytes.HasPrefix(header, magicRAR):
		return containerRAR
	case bytes.HasPrefix(header, magic7z):
		return container7z
	case bytes.HasPrefix(header, magicGzip):
		return containerGzip
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return containerZIP
	case strings.HasSuffix(lower, ".7z"):
		return container7z
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		return containerGzip
	case strings.HasSuffix(lower, ".rar"):
		return containerRAR
	}
	return containerNone
}

// member is one archive entry, opened on demand.
type member struct {
	name string
	dir  bool
	open func() (io.ReadCloser, error)
}

// firstTree returns the first .dts or .dtb member. Other members are never
// decompressed.
func firstTree(c container, archive string, members iter.Seq2[member, error]) ([]byte, string, error) {
	archive = filepath.Base(archive)
	for m, err := range members {
		if err != nil {
			return nil, "", fmt.Errorf("devicetree: %s archive %s is unreadable: %w", c, archive, err)
		}
		if m.dir || !isDeviceTreeFile(m.name) {
			continue
		}
		rc, err := m.open()
		if err != nil {
			return nil, "", fmt.Errorf("devicetree: %s in %s: %w", m.name, archive, err)
		}
		data, err := limitedRead(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("devicetree: %s in %s: %w", m.name, archive, err)
		}
		return data, filepath.Base(m.name), nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, archive)
}

func treeFromZIP(path string) ([]byte, string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("devicetree: %s is not a usable zip: %w", filepath.Base(path), err)
	}
	defer r.Close()
	return firstTree(containerZIP, path, func(yield func(member, error) bool) {
		for _, f := range r.File {
			if !yield(member{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open}, nil) {
				return
			}
		}
	})
}

func treeFrom7z(path string) ([]byte, string, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("devicetree: %s is not a usable 7z: %w", filepath.Base(path), err)
	}
	defer r.Close()
	return firstTree(container7z, path, func(yield func(member, error) bool) {
		for _, f := range r.File {
			if !yield(member{name: f.Name, dir: f.FileInfo().IsDir(), open: f.Open}, nil) {
				return
			}
		}
	})
}

// streamMembers walks a sequential archive. Each member is readable only
// until the next header is read, which firstTree respects.
func streamMembers(next func() (string, bool, error), body io.Reader) iter.Seq2[member, error] {
	open := func() (io.ReadCloser, error) { return io.NopCloser(body), nil }
	return func(yield func(member, error) bool) {
		for {
			name, dir, err := next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(member{}, err)
				return
			}
			if !yield(member{name: name, dir: dir, open: open}, nil) {
				return
			}
		}
	}
}

func treeFromRAR(path string) ([]byte, string, error) {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return nil, "", fmt.Errorf("devicetree: %s is not a usable rar: %w", filepath.Base(path), err)
	}
	defer r.Close()
	next := func() (string, bool, error) {
		h, err := r.Next()
		if err != nil {
			return "", false, err
		}
		return h.Name, h.IsDir, nil
	}
	return firstTree(containerRAR, path, streamMembers(next, r))
}

// treeFromGzip takes the whole payload of a .gz as the tree, or the first
// regular tree member of a .tar.gz.
func treeFromGzip(r io.Reader, path string) ([]byte, string, error) {
	base := filepath.Base(path)
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("devicetree: %s is not a usable gzip: %w", base, err)
	}
	defer gr.Close()

	lower := strings.ToLower(base)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		tr := tar.NewReader(gr)
		next := func() (string, bool, error) {
			h, err := tr.Next()
			if err != nil {
				return "", false, err
			}
			return h.Name, h.Typeflag != tar.TypeReg, nil
		}
		return firstTree(containerGzip, path, streamMembers(next, tr))
	}

	data, err := limitedRead(gr)
	if err != nil {
		return nil, "", fmt.Errorf("devicetree: %s: %w", base, err)
	}
	return data, strings.TrimSuffix(base, filepath.Ext(base)), nil
}
