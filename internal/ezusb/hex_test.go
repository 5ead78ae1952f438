package ezusb

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseHex(t *testing.T) {
	input := `# MIDISPORT test image
:0300300002337A1E

:02200000AABB79
:0100000055AA
:00000001FF
:0100000055AA
`
	img, err := ParseHex(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if len(img) != 3 {
		t.Fatalf("got %d records, want 3 (records after EOF are ignored)", len(img))
	}

	want := Image{
		{Address: 0x0030, Type: RecordData, Data: []byte{0x02, 0x33, 0x7A}},
		{Address: 0x2000, Type: RecordData, Data: []byte{0xAA, 0xBB}},
		{Address: 0x0000, Type: RecordData, Data: []byte{0x55}},
	}
	for i := range want {
		if img[i].Address != want[i].Address || !bytes.Equal(img[i].Data, want[i].Data) {
			t.Errorf("record %d = %+v, want %+v", i, img[i], want[i])
		}
	}
	if img.Size() != 6 {
		t.Errorf("Size() = %d, want 6", img.Size())
	}
	if !img[0].Internal() || img[1].Internal() {
		t.Error("internal/external classification is wrong")
	}
}

func TestParseHexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
		line  int
	}{
		{"missing colon", "0300300002337A1E\n", ErrMissingColon, 1},
		{"unsupported type", ":020000040000FA\n", ErrUnsupportedRecord, 1},
		{"short record", ":0300300002\n", ErrShortRecord, 1},
		{"too long", ":11000000" + strings.Repeat("00", 17) + "EF\n", ErrRecordTooLong, 1},
		{"empty", "# nothing\n:00000001FF\n", ErrEmptyImage, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHex(strings.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var rerr *RecordError
			if tt.line > 0 && (!errors.As(err, &rerr) || rerr.Line != tt.line) {
				t.Errorf("err = %v, want RecordError on line %d", err, tt.line)
			}
		})
	}
}

func TestParseHexChecksum(t *testing.T) {
	_, err := ParseHex(strings.NewReader("# header\n:0300300002337A1F\n"))

	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ChecksumError", err)
	}
	if cerr.Expected != 0x1E || cerr.Actual != 0x1F {
		t.Errorf("checksum error = %+v", cerr)
	}
	var rerr *RecordError
	if !errors.As(err, &rerr) || rerr.Line != 2 {
		t.Errorf("err = %v, want line 2", err)
	}
}

func TestParseHexFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.ihx")
	if err := os.WriteFile(path, []byte(":0100000055AA\r\n:00000001FF\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	img, err := ParseHexFile(path)
	if err != nil {
		t.Fatalf("ParseHexFile: %v", err)
	}
	if len(img) != 1 || img[0].Data[0] != 0x55 {
		t.Errorf("image = %+v", img)
	}

	if _, err := ParseHexFile(filepath.Join(t.TempDir(), "missing.ihx")); err == nil {
		t.Error("missing file parsed")
	}
}
