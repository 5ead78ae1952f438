// Package codec translates between MIDI messages and the 4-byte wire groups
// exchanged with the interface over its USB pipes.
package codec

import (
	"errors"
	"fmt"
)

// Variable is returned by DataBytesFollowing for SysEx start, whose length is
// only known once the terminating EOX arrives.
const Variable = -1

// Status bytes with special handling.
const (
	StatusSysEx       byte = 0xF0
	StatusEOX         byte = 0xF7
	StatusTuneRequest byte = 0xF6
	statusRealTime    byte = 0xF8
)

// ErrUnknownStatus classifies a byte that is not a defined MIDI status.
var ErrUnknownStatus = errors.New("unknown MIDI status byte")

// DataBytesFollowing returns how many data bytes follow status: 0, 1, 2 or
// Variable. Data bytes and undefined status bytes yield ErrUnknownStatus; the
// caller resynchronizes on the next status byte instead of failing.
func DataBytesFollowing(status byte) (int, error) {
	if status >= 0x80 && status < 0xF0 {
		if status&0xE0 == 0xC0 {
			return 1, nil
		}
		return 2, nil
	}
	switch status {
	case StatusSysEx:
		return Variable, nil
	case 0xF1, 0xF3:
		return 1, nil
	case 0xF2:
		return 2, nil
	case 0xF6, 0xF7, 0xF8, 0xFA, 0xFB, 0xFC, 0xFE, 0xFF:
		return 0, nil
	}
	return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownStatus, status)
}

// IsStatus reports whether b has the high bit set.
func IsStatus(b byte) bool {
	return b&0x80 != 0
}

// IsRealTime reports whether b is a system real-time byte, which may appear
// anywhere in the stream, including inside another message.
func IsRealTime(b byte) bool {
	return b >= statusRealTime
}

// IsChannelStatus reports whether b is a channel voice or mode status.
func IsChannelStatus(b byte) bool {
	return b >= 0x80 && b < 0xF0
}
