package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// FuncReadHoldingRegisters is the only function code the soil sensor serves.
	FuncReadHoldingRegisters = 0x03

	// RequestLength is the size of a read request ADU.
	RequestLength = 8

	// MaxRegisters is the largest quantity a single read may request.
	MaxRegisters = 125
)

var (
	ErrIncompleteResponse = errors.New("modbus: incomplete response")
	ErrAddressMismatch    = errors.New("modbus: slave address mismatch")
	ErrFunctionMismatch   = errors.New("modbus: function code mismatch")
	ErrByteCountMismatch  = errors.New("modbus: byte count mismatch")
	ErrCRCMismatch        = errors.New("modbus: CRC mismatch")
)

// BuildReadRequest builds the 8-byte read-holding-registers request:
//
//	[addr, 0x03, startHi, startLo, countHi, countLo, crcLo, crcHi]
func BuildReadRequest(slave byte, start, count uint16) []byte {
	frame := make([]byte, 6, RequestLength)
	frame[0] = slave
	frame[1] = FuncReadHoldingRegisters
	binary.BigEndian.PutUint16(frame[2:4], start)
	binary.BigEndian.PutUint16(frame[4:6], count)
	return AppendCRC(frame)
}

// ResponseLength returns the ADU size of a reply carrying count registers:
// header(3) + data(2·count) + CRC(2).
func ResponseLength(count uint16) int {
	return 3 + 2*int(count) + 2
}

// ValidateResponse checks a complete response ADU against the request that
// produced it. Checks run in wire order: length, address, function, byte
// count, CRC.
func ValidateResponse(resp []byte, slave byte, count uint16) error {
	want := ResponseLength(count)
	if len(resp) < want {
		return fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteResponse, len(resp), want)
	}
	resp = resp[:want]

	if resp[0] != slave {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrAddressMismatch, resp[0], slave)
	}
	if resp[1] != FuncReadHoldingRegisters {
		return fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrFunctionMismatch, resp[1], FuncReadHoldingRegisters)
	}
	if int(resp[2]) != 2*int(count) {
		return fmt.Errorf("%w: got %d, want %d", ErrByteCountMismatch, resp[2], 2*int(count))
	}
	if !CheckCRC(resp) {
		n := want - 2
		return fmt.Errorf("%w: received 0x%04X, calculated 0x%04X", ErrCRCMismatch,
			uint16(resp[n])|uint16(resp[n+1])<<8, CRC16(resp[:n]))
	}
	return nil
}

// Registers returns the register payload of a validated response.
func Registers(resp []byte) []byte {
	n := int(resp[2])
	return resp[3 : 3+n]
}
