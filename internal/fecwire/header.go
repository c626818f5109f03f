package fecwire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire sizes. All integers are big-endian.
//
// OTI:
//
//	CODEPOINT u32 | EW_SIZE u32 | TOT_SRC u32 | TOT_ENC u32
//
// FPI:
//
//	IS_SOURCE u16 | REPAIR_KEY u16 | NSS u16 | RESERVED u16 | ESI u32
const (
	OTILen = 16
	FPILen = 12
)

var (
	ErrShortBuffer   = errors.New("fecwire: short buffer")
	ErrBadSourceFlag = errors.New("fecwire: is_source must be 0 or 1")
	ErrPayloadSize   = errors.New("fecwire: payload shorter than symbol size")
)

// OTI is the FEC Object Transmission Information sent once per session.
type OTI struct {
	Codepoint    uint32
	WindowSize   uint32
	TotalSource  uint32
	TotalEncoded uint32
}

// MarshalBinary writes o into b, allocating when b is too short, and returns
// the OTILen-byte prefix.
func (o *OTI) MarshalBinary(b []byte) []byte {
	if len(b) < OTILen {
		b = make([]byte, OTILen)
	}
	binary.BigEndian.PutUint32(b[0:4], o.Codepoint)
	binary.BigEndian.PutUint32(b[4:8], o.WindowSize)
	binary.BigEndian.PutUint32(b[8:12], o.TotalSource)
	binary.BigEndian.PutUint32(b[12:16], o.TotalEncoded)
	return b[:OTILen]
}

// UnmarshalBinary requires exactly OTILen bytes.
func (o *OTI) UnmarshalBinary(b []byte) error {
	if len(b) != OTILen {
		return fmt.Errorf("%w: oti is %d bytes, want %d", ErrShortBuffer, len(b), OTILen)
	}
	o.Codepoint = binary.BigEndian.Uint32(b[0:4])
	o.WindowSize = binary.BigEndian.Uint32(b[4:8])
	o.TotalSource = binary.BigEndian.Uint32(b[8:12])
	o.TotalEncoded = binary.BigEndian.Uint32(b[12:16])
	return nil
}

// RepairInterval is the number of source symbols between two repair
// symbols for the announced code rate, at least 1. It is 0 when no repair
// symbol is announced.
func (o *OTI) RepairInterval() int {
	if o.TotalEncoded <= o.TotalSource {
		return 0
	}
	return max(int(o.TotalSource/(o.TotalEncoded-o.TotalSource)), 1)
}

// FPI is the FEC Payload Information header preceding every symbol. For a
// source symbol RepairKey and NSS are 0 and ESI is the symbol id. For a
// repair symbol ESI is the first id of its encoding window.
type FPI struct {
	IsSource  bool
	RepairKey uint16
	NSS       uint16
	ESI       uint32
}

func (h *FPI) MarshalBinary(b []byte) []byte {
	if len(b) < FPILen {
		b = make([]byte, FPILen)
	}
	var src uint16
	if h.IsSource {
		src = 1
	}
	binary.BigEndian.PutUint16(b[0:2], src)
	binary.BigEndian.PutUint16(b[2:4], h.RepairKey)
	binary.BigEndian.PutUint16(b[4:6], h.NSS)
	binary.BigEndian.PutUint16(b[6:8], 0)
	binary.BigEndian.PutUint32(b[8:12], h.ESI)
	return b[:FPILen]
}

func (h *FPI) UnmarshalBinary(b []byte) error {
	if len(b) < FPILen {
		return fmt.Errorf("%w: fpi is %d bytes, want %d", ErrShortBuffer, len(b), FPILen)
	}
	switch binary.BigEndian.Uint16(b[0:2]) {
	case 0:
		h.IsSource = false
	case 1:
		h.IsSource = true
	default:
		return ErrBadSourceFlag
	}
	h.RepairKey = binary.BigEndian.Uint16(b[2:4])
	h.NSS = binary.BigEndian.Uint16(b[4:6])
	h.ESI = binary.BigEndian.Uint32(b[8:12])
	return nil
}

// Packet is one datagram: an FPI and its symbol.
type Packet struct {
	FPI
	Payload []byte
}

// SourcePacket wraps source symbol esi.
func SourcePacket(esi uint32, payload []byte) Packet {
	return Packet{FPI: FPI{IsSource: true, ESI: esi}, Payload: payload}
}

// RepairPacket wraps a repair symbol over nss ids starting at first.
func RepairPacket(repairKey uint16, first uint32, nss uint16, payload []byte) Packet {
	return Packet{FPI: FPI{RepairKey: repairKey, NSS: nss, ESI: first}, Payload: payload}
}

// AppendBinary appends the encoded packet to b.
func (p *Packet) AppendBinary(b []byte) []byte {
	var hdr [FPILen]byte
	b = append(b, p.FPI.MarshalBinary(hdr[:])...)
	return append(b, p.Payload...)
}

// ParsePacket decodes a datagram carrying a symbol of symbolSize bytes.
// Trailing bytes past the symbol are ignored. Payload aliases b.
func ParsePacket(b []byte, symbolSize int) (Packet, error) {
	var p Packet
	if err := p.FPI.UnmarshalBinary(b); err != nil {
		return Packet{}, err
	}
	if len(b)-FPILen < symbolSize {
		return Packet{}, fmt.Errorf("%w: %d bytes, want %d", ErrPayloadSize, len(b)-FPILen, symbolSize)
	}
	p.Payload = b[FPILen : FPILen+symbolSize]
	return p, nil
}
