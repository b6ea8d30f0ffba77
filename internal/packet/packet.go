// Package packet implements the wire codec for CubeSat housekeeping
// telemetry records. Records are fixed-size, little-endian, and carry a
// framing magic plus a trailing CRC-32 over the payload.
package packet

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

const (
	// Magic is the framing marker at the start of every valid record.
	Magic uint32 = 0xABCD1234

	// PayloadSize is the width of all fields preceding the checksum.
	PayloadSize = 31

	// RecordSize is the total record width on the wire, checksum included.
	RecordSize = PayloadSize + 4
)

// Error flag bits set by the onboard fault detector. The bitmask travels
// opaque through the pipeline; the names exist for reporting.
const (
	FlagLowBatterySOC uint16 = 1 << iota
	FlagOvervoltage
	FlagUndervoltage
	FlagHighTemperature
	FlagLowTemperature
	FlagSolarFault
	FlagAltitudeDeviation
	FlagBattCurrentFault
)

// RawPacket is a decoded housekeeping record. Field order and widths match
// the wire layout exactly.
type RawPacket struct {
	Magic         uint32
	ID            uint32
	TimestampMs   uint64
	BatteryMv     uint16
	BattCurrentMa int16
	SocPercent    uint8
	TempCenti     int16
	SolarMa       int16
	AltitudeM     uint32
	ErrorFlags    uint16
	Checksum      uint32
}

// Timestamp returns the packet timestamp as a UTC time.
func (p *RawPacket) Timestamp() time.Time {
	return time.UnixMilli(int64(p.TimestampMs)).UTC()
}

// Result is the outcome of decoding one record. Framing and integrity are
// reported independently so callers can classify the two failure modes
// distinctly; the packet fields are populated either way.
type Result struct {
	Packet      RawPacket
	FramingOK   bool // magic matches the framing constant
	IntegrityOK bool // stored checksum matches the computed one
}

// OK reports whether the record passed both framing and integrity checks.
func (r Result) OK() bool {
	return r.FramingOK && r.IntegrityOK
}

// Decode parses exactly one record. The only error condition is a buffer of
// the wrong length; malformed content never fails, it is reported through
// the Result flags.
func Decode(data []byte) (Result, error) {
	if len(data) != RecordSize {
		return Result{}, fmt.Errorf("decoding record: want %d bytes, got %d", RecordSize, len(data))
	}

	var p RawPacket
	p.Magic = binary.LittleEndian.Uint32(data[0:4])
	p.ID = binary.LittleEndian.Uint32(data[4:8])
	p.TimestampMs = binary.LittleEndian.Uint64(data[8:16])
	p.BatteryMv = binary.LittleEndian.Uint16(data[16:18])
	p.BattCurrentMa = int16(binary.LittleEndian.Uint16(data[18:20]))
	p.SocPercent = data[20]
	p.TempCenti = int16(binary.LittleEndian.Uint16(data[21:23]))
	p.SolarMa = int16(binary.LittleEndian.Uint16(data[23:25]))
	p.AltitudeM = binary.LittleEndian.Uint32(data[25:29])
	p.ErrorFlags = binary.LittleEndian.Uint16(data[29:31])
	p.Checksum = binary.LittleEndian.Uint32(data[PayloadSize:RecordSize])

	return Result{
		Packet:      p,
		FramingOK:   p.Magic == Magic,
		IntegrityOK: p.Checksum == crc32.ChecksumIEEE(data[:PayloadSize]),
	}, nil
}

// Encode serializes the packet to its wire image. The stored Checksum field
// is ignored; the checksum is recomputed over the payload so that
// Encode(Decode(b)) reproduces b for every integrity-clean record.
func Encode(p *RawPacket) []byte {
	data := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(data[0:4], p.Magic)
	binary.LittleEndian.PutUint32(data[4:8], p.ID)
	binary.LittleEndian.PutUint64(data[8:16], p.TimestampMs)
	binary.LittleEndian.PutUint16(data[16:18], p.BatteryMv)
	binary.LittleEndian.PutUint16(data[18:20], uint16(p.BattCurrentMa))
	data[20] = p.SocPercent
	binary.LittleEndian.PutUint16(data[21:23], uint16(p.TempCenti))
	binary.LittleEndian.PutUint16(data[23:25], uint16(p.SolarMa))
	binary.LittleEndian.PutUint32(data[25:29], p.AltitudeM)
	binary.LittleEndian.PutUint16(data[29:31], p.ErrorFlags)
	binary.LittleEndian.PutUint32(data[PayloadSize:RecordSize], crc32.ChecksumIEEE(data[:PayloadSize]))
	return data
}
