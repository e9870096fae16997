package zcore

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrStoryFormat        = errors.New("story file format error")
	ErrAddressOutOfBounds = errors.New("address out of bounds")
	ErrReadOnlyViolation  = errors.New("write to read-only memory")
)

// Core is the story file's address space plus the header fields a version 3
// interpreter consumes. Dynamic memory is [0, StaticMemoryBase), writable by
// the running program; everything above is read-only to it.
type Core struct {
	bytes                 []uint8
	Version               uint8
	FlagByte1             uint8
	StatusBarTimeBased    bool
	ReleaseNumber         uint16
	HighMemoryBase        uint16
	FirstInstruction      uint16
	DictionaryBase        uint16
	ObjectTableBase       uint16
	GlobalVariableBase    uint16
	StaticMemoryBase      uint16
	SerialCode            []uint8
	AbbreviationTableBase uint16
	FileChecksum          uint16
}

const headerSize = 0x40

func LoadCore(bytes []uint8) (Core, error) {
	if len(bytes) < headerSize {
		return Core{}, fmt.Errorf("%d byte file is smaller than the header: %w", len(bytes), ErrStoryFormat)
	}
	if version := bytes[0]; version != 3 {
		return Core{}, fmt.Errorf("version %d story file: %w", version, ErrStoryFormat)
	}

	// Declare interpreter capabilities: status line available (bit 4 clear),
	// no screen splitting (bit 5 clear), fixed-pitch font (bit 6 clear).
	bytes[0x01] &= 0b1000_1111

	// Claim conformance with revision 1.2 of the standards document.
	bytes[0x32] = 0x1
	bytes[0x33] = 0x2

	core := Core{
		bytes:                 bytes,
		Version:               bytes[0x00],
		FlagByte1:             bytes[0x01],
		StatusBarTimeBased:    bytes[0x01]&0b0000_0010 == 0b0000_0010,
		ReleaseNumber:         binary.BigEndian.Uint16(bytes[0x02:0x04]),
		HighMemoryBase:        binary.BigEndian.Uint16(bytes[0x04:0x06]),
		FirstInstruction:      binary.BigEndian.Uint16(bytes[0x06:0x08]),
		DictionaryBase:        binary.BigEndian.Uint16(bytes[0x08:0x0a]),
		ObjectTableBase:       binary.BigEndian.Uint16(bytes[0x0a:0x0c]),
		GlobalVariableBase:    binary.BigEndian.Uint16(bytes[0x0c:0x0e]),
		StaticMemoryBase:      binary.BigEndian.Uint16(bytes[0x0e:0x10]),
		SerialCode:            bytes[0x12:0x18],
		AbbreviationTableBase: binary.BigEndian.Uint16(bytes[0x18:0x1a]),
		FileChecksum:          binary.BigEndian.Uint16(bytes[0x1c:0x1e]),
	}

	if core.StaticMemoryBase < headerSize {
		return Core{}, fmt.Errorf("static memory base 0x%x overlaps the header: %w", core.StaticMemoryBase, ErrStoryFormat)
	}
	if uint32(core.StaticMemoryBase) > core.MemoryLength() {
		return Core{}, fmt.Errorf("static memory base 0x%x beyond end of file: %w", core.StaticMemoryBase, ErrStoryFormat)
	}
	if fileLength := core.FileLength(); fileLength != 0 {
		if fileLength > core.MemoryLength() {
			return Core{}, fmt.Errorf("header claims 0x%x bytes but file has 0x%x: %w", fileLength, core.MemoryLength(), ErrStoryFormat)
		}
		if checksum := core.ComputeChecksum(); checksum != core.FileChecksum {
			return Core{}, fmt.Errorf("checksum 0x%04x does not match header 0x%04x: %w", checksum, core.FileChecksum, ErrStoryFormat)
		}
	}

	return core, nil
}

// FileLength is the declared story length in bytes. The header stores it
// divided by 2 in version 3. Early story files left it zero.
func (core *Core) FileLength() uint32 {
	return uint32(binary.BigEndian.Uint16(core.bytes[0x1a:0x1c])) * 2
}

// ComputeChecksum sums every byte from the end of the header to the declared
// file length, modulo 0x10000. Used at load and by the verify opcode.
func (core *Core) ComputeChecksum() uint16 {
	end := core.FileLength()
	if end > core.MemoryLength() {
		end = core.MemoryLength()
	}
	if end < headerSize {
		return 0
	}
	sum := uint16(0)
	for _, b := range core.bytes[headerSize:end] {
		sum += uint16(b)
	}
	return sum
}

// RoutineAddress expands a packed routine address. The factor is 2 in
// version 3, no offset constants.
func (core *Core) RoutineAddress(packed uint16) uint32 {
	return uint32(packed) * 2
}

func (core *Core) StringAddress(packed uint16) uint32 {
	return uint32(packed) * 2
}

func (core *Core) ReadZByte(address uint32) (uint8, error) {
	if address >= core.MemoryLength() {
		return 0, fmt.Errorf("byte read at 0x%x: %w", address, ErrAddressOutOfBounds)
	}
	return core.bytes[address], nil
}

func (core *Core) ReadHalfWord(address uint32) (uint16, error) {
	if address+2 > core.MemoryLength() {
		return 0, fmt.Errorf("word read at 0x%x: %w", address, ErrAddressOutOfBounds)
	}
	return binary.BigEndian.Uint16(core.bytes[address : address+2]), nil
}

func (core *Core) ReadSlice(startAddress uint32, endAddress uint32) ([]uint8, error) {
	if startAddress > endAddress || endAddress > core.MemoryLength() {
		return nil, fmt.Errorf("slice read [0x%x, 0x%x): %w", startAddress, endAddress, ErrAddressOutOfBounds)
	}
	return core.bytes[startAddress:endAddress], nil
}

// WriteZByte is a program-initiated write and so is refused outside dynamic
// memory. The loader's own header writes go directly to the byte slice.
func (core *Core) WriteZByte(address uint32, value uint8) error {
	if address >= core.MemoryLength() {
		return fmt.Errorf("byte write at 0x%x: %w", address, ErrAddressOutOfBounds)
	}
	if address >= uint32(core.StaticMemoryBase) {
		return fmt.Errorf("byte write at 0x%x above static base 0x%x: %w", address, core.StaticMemoryBase, ErrReadOnlyViolation)
	}
	core.bytes[address] = value
	return nil
}

func (core *Core) WriteHalfWord(address uint32, value uint16) error {
	if address+2 > core.MemoryLength() {
		return fmt.Errorf("word write at 0x%x: %w", address, ErrAddressOutOfBounds)
	}
	if address+2 > uint32(core.StaticMemoryBase) {
		return fmt.Errorf("word write at 0x%x above static base 0x%x: %w", address, core.StaticMemoryBase, ErrReadOnlyViolation)
	}
	binary.BigEndian.PutUint16(core.bytes[address:address+2], value)
	return nil
}

func (core *Core) MemoryLength() uint32 {
	return uint32(len(core.bytes))
}
