// Package ezusb loads firmware into the Cypress EZ-USB (AN21xx) controller
// found in MIDISPORT interfaces, which enumerate without firmware.
package ezusb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// MaxRecordLength is the longest data record the loader accepts.
const MaxRecordLength = 16

// RecordType is the type field of an Intel hex record.
type RecordType byte

const (
	RecordData RecordType = 0x00
	RecordEOF  RecordType = 0x01
)

// Record is one data record of an Intel hex image.
type Record struct {
	Address uint16
	Type    RecordType
	Data    []byte
}

// Internal reports whether the record targets the controller's internal RAM.
func (r Record) Internal() bool {
	return r.Address <= MaxInternalAddress
}

// Image is the ordered list of data records of a firmware file.
type Image []Record

// Size returns the number of payload bytes in the image.
func (img Image) Size() int {
	n := 0
	for _, r := range img {
		n += len(r.Data)
	}
	return n
}

// ParseHexFile reads an Intel hex file.
func ParseHexFile(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open firmware: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := ParseHex(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ParseHex reads Intel hex records from r up to the end-of-file record.
// Blank lines and lines starting with '#' are skipped.
func ParseHex(r io.Reader) (Image, error) {
	scanner := bufio.NewScanner(r)
	var img Image

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, &RecordError{Line: lineNum, Err: err}
		}
		if rec.Type == RecordEOF {
			break
		}
		img = append(img, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read firmware: %w", err)
	}
	if len(img) == 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

// parseRecord decodes ":LLAAAATT<data>CC".
func parseRecord(line string) (Record, error) {
	if line[0] != ':' {
		return Record{}, ErrMissingColon
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return Record{}, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(raw) < 5 {
		return Record{}, ErrShortRecord
	}

	length := int(raw[0])
	if length > MaxRecordLength {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLong, length)
	}
	if len(raw) < 5+length {
		return Record{}, ErrShortRecord
	}

	var sum byte
	for _, b := range raw[:4+length] {
		sum += b
	}
	if want, got := -sum, raw[4+length]; want != got {
		return Record{}, &ChecksumError{Expected: want, Actual: got}
	}

	rec := Record{
		Address: uint16(raw[1])<<8 | uint16(raw[2]),
		Type:    RecordType(raw[3]),
		Data:    append([]byte(nil), raw[4:4+length]...),
	}
	if rec.Type != RecordData && rec.Type != RecordEOF {
		return Record{}, fmt.Errorf("%w: 0x%02X", ErrUnsupportedRecord, byte(rec.Type))
	}
	return rec, nil
}
