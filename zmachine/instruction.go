package zmachine

import (
	"fmt"
	"strings"

	"github.com/olson-dan/gozork/zcore"
	"github.com/olson-dan/gozork/zstring"
)

type OperandType int
type OpcodeForm int
type OperandCount int

const (
	largeConstant OperandType = 0b00
	smallConstant OperandType = 0b01
	variable      OperandType = 0b10
	ommitted      OperandType = 0b11
)

const (
	longForm  OpcodeForm = iota
	shortForm OpcodeForm = iota
	varForm   OpcodeForm = iota
)

const (
	OP0 OperandCount = iota
	OP1 OperandCount = iota
	OP2 OperandCount = iota
	VAR OperandCount = iota
)

type Operand struct {
	operandType OperandType
	value       uint16 // Constant value, or the variable number for type variable
}

// branchArg is a branch instruction's polarity and target. Offsets 0 and 1
// mean return false or true from the routine rather than jump.
type branchArg struct {
	onTrue bool
	offset int16
}

// Instruction is one fully decoded instruction: opcode, operands, and the
// store target, branch argument and inline text the opcode calls for.
// Decoding never touches machine state, so an Instruction can be executed,
// printed or thrown away.
type Instruction struct {
	address      uint32
	opcodeByte   uint8
	form         OpcodeForm
	operandCount OperandCount
	opcodeNumber uint8
	operands     []Operand
	storeTarget  uint8
	stores       bool
	branch       branchArg
	branches     bool
	text         string
	length       uint32
}

// opcodeNames doubles as the validity table: a missing or empty entry is an
// opcode number the version 3 machine never assigned.
var opcodeNames = map[OperandCount][]string{
	OP0: {"rtrue", "rfalse", "print", "print_ret", "nop", "save", "restore", "restart",
		"ret_popped", "pop", "quit", "new_line", "show_status", "verify"},
	OP1: {"jz", "get_sibling", "get_child", "get_parent", "get_prop_len", "inc", "dec", "print_addr",
		"", "remove_obj", "print_obj", "ret", "jump", "print_paddr", "load", "not"},
	OP2: {"", "je", "jl", "jg", "dec_chk", "inc_chk", "jin", "test",
		"or", "and", "test_attr", "set_attr", "clear_attr", "store", "insert_obj", "loadw",
		"loadb", "get_prop", "get_prop_addr", "get_next_prop", "add", "sub", "mul", "div", "mod"},
	VAR: {"call", "storew", "storeb", "put_prop", "sread", "print_char", "print_num", "random",
		"push", "pull", "split_window", "set_window", "", "", "", "",
		"", "", "", "output_stream", "input_stream", "sound_effect"},
}

func opcodeName(count OperandCount, number uint8) (string, bool) {
	names := opcodeNames[count]
	if int(number) >= len(names) || names[number] == "" {
		return "", false
	}
	return names[number], true
}

func storesResult(count OperandCount, number uint8) bool {
	switch count {
	case OP2:
		return number == 8 || number == 9 || (number >= 15 && number <= 24)
	case OP1:
		switch number {
		case 1, 2, 3, 4, 14, 15:
			return true
		}
	case VAR:
		return number == 0 || number == 7 // call, random
	}
	return false
}

func branchesOnCondition(count OperandCount, number uint8) bool {
	switch count {
	case OP2:
		return (number >= 1 && number <= 7) || number == 10
	case OP1:
		return number <= 2 // jz, get_sibling, get_child
	case OP0:
		return number == 5 || number == 6 || number == 13 // save, restore, verify
	}
	return false
}

func carriesText(count OperandCount, number uint8) bool {
	return count == OP0 && (number == 2 || number == 3) // print, print_ret
}

type decodeCursor struct {
	core    *zcore.Core
	address uint32
}

func (c *decodeCursor) readByte() (uint8, error) {
	v, err := c.core.ReadZByte(c.address)
	c.address++
	return v, err
}

func (c *decodeCursor) readHalfWord() (uint16, error) {
	v, err := c.core.ReadHalfWord(c.address)
	c.address += 2
	return v, err
}

func parseVariableOperands(cursor *decodeCursor, instruction *Instruction) error {
	operandTypeByte, err := cursor.readByte()
	if err != nil {
		return err
	}

variableOperandLoop:
	for i := uint8(0); i < 4; i++ {
		operandType := OperandType((operandTypeByte >> (2 * (3 - i))) & 0b11)

		switch operandType {
		case ommitted:
			break variableOperandLoop
		case smallConstant, variable:
			value, err := cursor.readByte()
			if err != nil {
				return err
			}
			instruction.operands = append(instruction.operands, Operand{operandType: operandType, value: uint16(value)})
		case largeConstant:
			value, err := cursor.readHalfWord()
			if err != nil {
				return err
			}
			instruction.operands = append(instruction.operands, Operand{operandType: operandType, value: value})
		}
	}

	return nil
}

// parseBranchArg reads the one or two byte branch argument. Bit 7 gives the
// polarity, bit 6 selects the single byte form with its 6 bit unsigned
// offset; the two byte form carries a 14 bit signed offset.
func parseBranchArg(cursor *decodeCursor) (branchArg, error) {
	first, err := cursor.readByte()
	if err != nil {
		return branchArg{}, err
	}

	branch := branchArg{onTrue: first&0b1000_0000 != 0}

	if first&0b0100_0000 != 0 {
		branch.offset = int16(first & 0b11_1111)
	} else {
		second, err := cursor.readByte()
		if err != nil {
			return branchArg{}, err
		}
		raw := uint16(first&0b11_1111)<<8 | uint16(second)
		branch.offset = int16(raw<<2) >> 2
	}

	return branch, nil
}

func DecodeInstruction(core *zcore.Core, address uint32) (Instruction, error) {
	cursor := decodeCursor{core: core, address: address}

	opcodeByte, err := cursor.readByte()
	if err != nil {
		return Instruction{}, err
	}

	instruction := Instruction{address: address, opcodeByte: opcodeByte}

	switch opcodeByte >> 6 {
	case 0b11: // Variable form, but the 2OP opcode set when bit 5 is clear
		instruction.form = varForm
		instruction.opcodeNumber = opcodeByte & 0b1_1111
		instruction.operandCount = VAR
		if (opcodeByte>>5)&1 == 0 {
			instruction.operandCount = OP2
		}

		if err := parseVariableOperands(&cursor, &instruction); err != nil {
			return Instruction{}, err
		}

	case 0b10: // Short form
		instruction.form = shortForm
		instruction.opcodeNumber = opcodeByte & 0b1111
		operandType := OperandType((opcodeByte >> 4) & 0b11)

		if operandType == ommitted {
			instruction.operandCount = OP0
		} else {
			instruction.operandCount = OP1
			var value uint16
			if operandType == largeConstant {
				value, err = cursor.readHalfWord()
			} else {
				var b uint8
				b, err = cursor.readByte()
				value = uint16(b)
			}
			if err != nil {
				return Instruction{}, err
			}
			instruction.operands = append(instruction.operands, Operand{operandType: operandType, value: value})
		}

	default: // Long form, always 2OP with single byte operands
		instruction.form = longForm
		instruction.opcodeNumber = opcodeByte & 0b1_1111
		instruction.operandCount = OP2

		for _, bit := range []uint8{6, 5} {
			operandType := smallConstant
			if (opcodeByte>>bit)&1 == 1 {
				operandType = variable
			}
			value, err := cursor.readByte()
			if err != nil {
				return Instruction{}, err
			}
			instruction.operands = append(instruction.operands, Operand{operandType: operandType, value: uint16(value)})
		}
	}

	if _, ok := opcodeName(instruction.operandCount, instruction.opcodeNumber); !ok {
		return Instruction{}, fmt.Errorf("opcode byte 0x%02x at 0x%x: %w", opcodeByte, address, ErrInvalidOpcode)
	}

	if storesResult(instruction.operandCount, instruction.opcodeNumber) {
		instruction.stores = true
		if instruction.storeTarget, err = cursor.readByte(); err != nil {
			return Instruction{}, err
		}
	}

	if branchesOnCondition(instruction.operandCount, instruction.opcodeNumber) {
		instruction.branches = true
		if instruction.branch, err = parseBranchArg(&cursor); err != nil {
			return Instruction{}, err
		}
	}

	if carriesText(instruction.operandCount, instruction.opcodeNumber) {
		text, bytesRead, err := zstring.Decode(core, cursor.address)
		if err != nil {
			return Instruction{}, err
		}
		instruction.text = text
		cursor.address += bytesRead
	}

	instruction.length = cursor.address - address

	return instruction, nil
}

func variableName(variable uint8) string {
	switch {
	case variable == 0:
		return "sp"
	case variable < globalVariableStart:
		return fmt.Sprintf("local%d", variable-1)
	default:
		return fmt.Sprintf("g%02x", variable-globalVariableStart)
	}
}

// String renders the instruction in a disassembly style:
//
//	[0x47c3] je local0 #002d ?~0x47d1
func (instruction Instruction) String() string {
	name, _ := opcodeName(instruction.operandCount, instruction.opcodeNumber)

	var b strings.Builder
	fmt.Fprintf(&b, "[0x%04x] %s", instruction.address, name)

	for _, operand := range instruction.operands {
		if operand.operandType == variable {
			fmt.Fprintf(&b, " %s", variableName(uint8(operand.value)))
		} else {
			fmt.Fprintf(&b, " #%04x", operand.value)
		}
	}

	if carriesText(instruction.operandCount, instruction.opcodeNumber) {
		fmt.Fprintf(&b, " %q", instruction.text)
	}
	if instruction.stores {
		fmt.Fprintf(&b, " -> %s", variableName(instruction.storeTarget))
	}
	if instruction.branches {
		not := ""
		if !instruction.branch.onTrue {
			not = "~"
		}
		switch instruction.branch.offset {
		case 0:
			fmt.Fprintf(&b, " ?%srfalse", not)
		case 1:
			fmt.Fprintf(&b, " ?%srtrue", not)
		default:
			destination := int64(instruction.address) + int64(instruction.length) + int64(instruction.branch.offset) - 2
			fmt.Fprintf(&b, " ?%s0x%04x", not, destination)
		}
	}

	return b.String()
}
