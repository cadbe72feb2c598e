package devicetree

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleDTS = `// board description
/* generated */
/dts-v1/;

/ {
	#address-cells = <1>;
	#size-cells = <1>;
	compatible = "riscv-virtio";
};
`

// buildDTB makes a minimal blob with a consistent header.
func buildDTB(total int) []byte {
	b := make([]byte, total)
	binary.BigEndian.PutUint32(b[0:], dtbMagic)
	binary.BigEndian.PutUint32(b[4:], uint32(total))
	binary.BigEndian.PutUint32(b[20:], 17) // version
	return b
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParse_DTS(t *testing.T) {
	src, err := Parse("board.dts", []byte(sampleDTS+"\x00"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if src.Format != FormatDTS {
		t.Fatalf("format: got %v, want dts", src.Format)
	}
	b := src.Bytes()
	if b[len(b)-1] != 0 || bytes.Count(b, []byte{0}) != 1 {
		t.Fatalf("DTS bytes must end in exactly one NUL")
	}
}

func TestParse_DTSRejectsMissingTag(t *testing.T) {
	cases := map[string]string{
		"no tag":       "/ { };",
		"open comment": "/* never closed",
		"only comment": "// nothing else",
	}
	for name, in := range cases {
		if _, err := Parse("x.dts", []byte(in)); !errors.Is(err, ErrUnrecognized) {
			t.Fatalf("%s: got %v, want ErrUnrecognized", name, err)
		}
	}
}

func TestParse_DTB(t *testing.T) {
	blob := buildDTB(64)
	src, err := Parse("board.dtb", blob)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if src.Format != FormatDTB || !bytes.Equal(src.Bytes(), blob) {
		t.Fatalf("dtb must pass through unchanged")
	}

	bad := buildDTB(64)
	binary.BigEndian.PutUint32(bad[4:], 4096)
	_, err = Parse("bad.dtb", bad)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Name != "bad.dtb" || !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("inconsistent totalsize: got %v", err)
	}
	if _, err := Parse("short.dtb", blob[:12]); !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("truncated header: got %v", err)
	}
}

func TestParse_Limits(t *testing.T) {
	if _, err := Parse("empty", nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty: got %v", err)
	}
	big := append([]byte("/dts-v1/;"), make([]byte, MaxSize)...)
	if _, err := Parse("big.dts", big); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversize: got %v", err)
	}
}

func TestLoad_Raw(t *testing.T) {
	path := writeFile(t, "board.dts", []byte(sampleDTS))
	src, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Name != "board.dts" || string(src.Data) != sampleDTS {
		t.Fatalf("unexpected source %q (%d bytes)", src.Name, len(src.Data))
	}
}

func TestLoad_Zip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("README.txt")
	w.Write([]byte("not a tree"))
	w, _ = zw.Create("boards/virt.dtb")
	w.Write(buildDTB(48))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip: %v", err)
	}

	src, err := Load(writeFile(t, "trees.zip", buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Name != "virt.dtb" || src.Format != FormatDTB {
		t.Fatalf("got %s (%v)", src.Name, src.Format)
	}
}

func TestLoad_ZipWithoutTree(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("notes.txt")
	w.Write([]byte("nothing"))
	zw.Close()

	_, err := Load(writeFile(t, "empty.zip", buf.Bytes()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "empty.zip") {
		t.Fatalf("error should name the archive: %v", err)
	}
}

func TestLoad_CorruptArchiveNamesFile(t *testing.T) {
	// zip magic with nothing usable behind it
	data := append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{0}, 60)...)
	_, err := Load(writeFile(t, "broken.zip", data))
	if err == nil {
		t.Fatalf("expected an error for a corrupt zip")
	}
	if msg := err.Error(); !strings.HasPrefix(msg, "devicetree: broken.zip") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestLoad_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write([]byte(sampleDTS))
	gw.Close()

	src, err := Load(writeFile(t, "board.dts.gz", buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Name != "board.dts" || src.Format != FormatDTS {
		t.Fatalf("got %s (%v)", src.Name, src.Format)
	}
}

func TestLoad_TarGz(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	body := []byte(sampleDTS)
	tw.WriteHeader(&tar.Header{Name: "tree/board.dts", Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg})
	tw.Write(body)
	tw.Close()
	gw.Close()

	src, err := Load(writeFile(t, "bundle.tar.gz", buf.Bytes()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Name != "board.dts" {
		t.Fatalf("name: got %s", src.Name)
	}
}

func TestDetectContainer(t *testing.T) {
	cases := []struct {
		header []byte
		path   string
		want   container
	}{
		{magicZIP, "x.bin", containerZIP},
		{append(append([]byte(nil), magic7z...), 0, 4), "x", container7z},
		{append(append([]byte(nil), magicRAR...), 0x1a, 0x07), "x", containerRAR},
		{magicGzip, "x", containerGzip},
		{[]byte("/dts-v1/;"), "trees.7z", container7z},
		{[]byte("/dts-v1/;"), "board.dts", containerNone},
	}
	for _, c := range cases {
		if got := detectContainer(c.header, c.path); got != c.want {
			t.Fatalf("detectContainer(%q, %s): got %d, want %d", c.header, c.path, got, c.want)
		}
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "board.dts", []byte(sampleDTS))

	loaded := make(chan *Source, 4)
	w := NewWatcher(path, func(s *Source) { loaded <- s }, nil)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// give the watcher a moment to register before touching the file
	time.Sleep(100 * time.Millisecond)
	updated := sampleDTS + "\n/ { model = \"updated\"; };\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case src := <-loaded:
		if string(src.Data) != updated {
			t.Fatalf("reloaded stale content")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload after write")
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
