package ezusb

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingColon is returned for a record line that does not start with ':'.
	ErrMissingColon = errors.New("record does not start with ':'")
	// ErrRecordTooLong is returned for data records longer than MaxRecordLength.
	ErrRecordTooLong = errors.New("record longer than maximum")
	// ErrShortRecord is returned when a line holds fewer bytes than its length field announces.
	ErrShortRecord = errors.New("record shorter than its length field")
	// ErrUnsupportedRecord is returned for record types other than data and end-of-file.
	ErrUnsupportedRecord = errors.New("unsupported record type")
	// ErrEmptyImage is returned for a file without data records.
	ErrEmptyImage = errors.New("no data records in image")
	// ErrTimeout is returned when a device does not re-enumerate in time.
	ErrTimeout = errors.New("device did not re-enumerate")
)

// RecordError reports the line of an Intel hex file that failed to parse.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ChecksumError indicates that a record checksum does not match its contents.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: record has 0x%02X, calculated 0x%02X", e.Actual, e.Expected)
}
