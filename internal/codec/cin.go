package codec

// Code index numbers of the USB-MIDI class framing.
const (
	cinSysExContinue   byte = 0x4
	cinSysExEnd1       byte = 0x5
	cinSingleByte      byte = 0xF
	cinTwoByteCommon   byte = 0x2
	cinThreeByteCommon byte = 0x3
)

// cinLength is the number of payload bytes carried by each code index number.
// 0 and 1 are reserved and carry nothing.
var cinLength = [16]int{0, 0, 2, 3, 3, 1, 2, 3, 3, 3, 3, 3, 2, 2, 3, 1}

// classCIN picks the code index number for a group payload. It returns how
// many bytes of payload the group can carry; a short SysEx run that the class
// framing cannot express is sent one byte at a time.
func classCIN(payload []byte) (cin byte, n int) {
	s := payload[0]
	switch {
	case IsChannelStatus(s):
		want, _ := DataBytesFollowing(s)
		if len(payload) == want+1 {
			return s >> 4, len(payload)
		}
	case s == 0xF1 || s == 0xF3:
		if len(payload) == 2 {
			return cinTwoByteCommon, 2
		}
	case s == 0xF2:
		if len(payload) == 3 {
			return cinThreeByteCommon, 3
		}
	case s == StatusTuneRequest:
		return cinSysExEnd1, 1
	case IsRealTime(s):
		return cinSingleByte, 1
	default:
		// SysEx start, SysEx data or a lone EOX.
		if payload[len(payload)-1] == StatusEOX {
			return cinSysExEnd1 + byte(len(payload)-1), len(payload)
		}
		if len(payload) == 3 {
			return cinSysExContinue, 3
		}
	}
	return cinSingleByte, 1
}
