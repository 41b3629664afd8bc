// Package tsdb implements the TimeSeriesDB day-file format.
//
// A day file is an append-only byte stream: an 8-byte magic tag, a 4-byte
// little-endian version, then self-delimiting entries. Entries carry channel
// definitions, timestamp updates, and values; a finalized file ends with a
// single end-of-file marker byte. The format is stateful: a value entry is
// interpreted against the most recent timestamp entry and the channel table
// built from earlier definition entries.
package tsdb

// Magic is the 8-byte tag at the start of every day file: "TSDB" padded
// with zeros.
const Magic = "TSDB\x00\x00\x00\x00"

// Version is the only supported format version.
const Version uint32 = 1

// HeaderSize is the byte length of magic plus version.
const HeaderSize = 12

// Entry type discriminants. Bytes 0x00..0xef are value entries whose type
// byte is the 8-bit channel id itself.
const (
	entryTimeAbsolute = 0xf0 // u64 absolute UNIX milliseconds UTC
	entryTimeRel8     = 0xf1 // u8 delta
	entryTimeRel16    = 0xf2 // u16 delta
	entryTimeRel24    = 0xf3 // u24 delta
	entryTimeRel32    = 0xf4 // u32 delta
	entryChannelDef8  = 0xf5 // u8 id, u8 format, u8 name length, name
	entryChannelDef16 = 0xf6 // u16 id, u8 format, u8 name length, name
	entryEOF          = 0xfe
	entryValue16      = 0xff // u16 channel id, then payload
)

// MaxChannelID8 is the largest 8-bit channel id. Ids above it are encoded
// as 16-bit and referenced through the 0xff escape.
const MaxChannelID8 = 0xef

// MaxChannelID is the largest channel id representable in a file.
const MaxChannelID = 0xffff

// Format ids. The numeric families follow a nibble scheme: the high nibble
// selects width and signedness, the low nibble a decimal divisor
// (0 -> none, 1 -> 10, 2 -> 100, 3 -> 1000).
const (
	FormatFloat byte = 0x00

	FormatDouble         byte = 0x01
	FormatDoubleDec1     byte = 0x02
	FormatDoubleDec2     byte = 0x03
	FormatDoubleDec3     byte = 0x04
	FormatDoubleDec4     byte = 0x05
	FormatDoubleDec5     byte = 0x06
	FormatDoubleDec6Plus byte = 0x07

	FormatStringU8  byte = 0x08
	FormatStringU16 byte = 0x09
	FormatStringU32 byte = 0x0a
	FormatStringU64 byte = 0x0b
)
