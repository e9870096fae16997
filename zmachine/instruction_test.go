package zmachine

import (
	"errors"
	"testing"

	"github.com/olson-dan/gozork/zcore"
)

// decodeTestCore wraps the given code in a minimal story image, placing it at
// 0x40 (the first byte after the header).
func decodeTestCore(t *testing.T, code []uint8) *zcore.Core {
	t.Helper()

	image := make([]uint8, 0x80)
	image[0x00] = 3
	image[0x0f] = 0x70 // static memory base; decoding only ever reads

	copy(image[0x40:], code)

	core, err := zcore.LoadCore(image)
	if err != nil {
		t.Fatalf("Failed to build core: %v", err)
	}
	return &core
}

func decode(t *testing.T, code []uint8) Instruction {
	t.Helper()

	instruction, err := DecodeInstruction(decodeTestCore(t, code), 0x40)
	if err != nil {
		t.Fatalf("Failed to decode % x: %v", code, err)
	}
	return instruction
}

func TestDecodeLongForm(t *testing.T) {
	instruction := decode(t, []uint8{0x14, 0x05, 0x03, 0x10})

	if instruction.form != longForm || instruction.operandCount != OP2 || instruction.opcodeNumber != 20 {
		t.Errorf("Incorrect classification %d/%d/%d, expected long 2OP add",
			instruction.form, instruction.operandCount, instruction.opcodeNumber)
	}
	if len(instruction.operands) != 2 {
		t.Fatalf("Incorrect operand count %d, expected 2", len(instruction.operands))
	}
	if instruction.operands[0] != (Operand{smallConstant, 5}) || instruction.operands[1] != (Operand{smallConstant, 3}) {
		t.Errorf("Incorrect operands %v", instruction.operands)
	}
	if !instruction.stores || instruction.storeTarget != 0x10 {
		t.Errorf("Incorrect store target %d, expected global 16", instruction.storeTarget)
	}
	if instruction.branches {
		t.Errorf("Incorrect branch mark on add")
	}
	if instruction.length != 4 {
		t.Errorf("Incorrect length %d, expected 4", instruction.length)
	}

	withVariables := decode(t, []uint8{0x74, 0x01, 0x02, 0x00})
	if withVariables.operands[0] != (Operand{variable, 1}) || withVariables.operands[1] != (Operand{variable, 2}) {
		t.Errorf("Incorrect operands %v, expected two variables", withVariables.operands)
	}
}

func TestDecodeShortForm(t *testing.T) {
	jz := decode(t, []uint8{0x80, 0x12, 0x34, 0xC5})
	if jz.operandCount != OP1 || jz.opcodeNumber != 0 {
		t.Errorf("Incorrect classification %d/%d, expected 1OP jz", jz.operandCount, jz.opcodeNumber)
	}
	if jz.operands[0] != (Operand{largeConstant, 0x1234}) {
		t.Errorf("Incorrect operand %v, expected large constant 0x1234", jz.operands[0])
	}
	if !jz.branches || jz.branch.onTrue != true || jz.branch.offset != 5 {
		t.Errorf("Incorrect branch %+v, expected on true offset 5", jz.branch)
	}
	if jz.length != 4 {
		t.Errorf("Incorrect length %d, expected 4", jz.length)
	}

	quit := decode(t, []uint8{0xBA})
	if quit.operandCount != OP0 || quit.opcodeNumber != 10 || len(quit.operands) != 0 || quit.length != 1 {
		t.Errorf("Incorrect decode %+v, expected bare quit", quit)
	}
}

func TestDecodeVariableForm(t *testing.T) {
	call := decode(t, []uint8{0xE0, 0x3F, 0x02, 0x40, 0x10})
	if call.operandCount != VAR || call.opcodeNumber != 0 {
		t.Errorf("Incorrect classification %d/%d, expected VAR call", call.operandCount, call.opcodeNumber)
	}
	if len(call.operands) != 1 || call.operands[0] != (Operand{largeConstant, 0x0240}) {
		t.Errorf("Incorrect operands %v, expected packed address 0x0240", call.operands)
	}
	if !call.stores || call.storeTarget != 0x10 || call.length != 5 {
		t.Errorf("Incorrect store/length %d/%d", call.storeTarget, call.length)
	}

	// Opcode byte with bit 5 clear selects the 2OP set, here je with four
	// operands.
	je := decode(t, []uint8{0xC1, 0x55, 0x01, 0x02, 0x03, 0x04, 0xC2})
	if je.operandCount != OP2 || je.opcodeNumber != 1 {
		t.Errorf("Incorrect classification %d/%d, expected 2OP je", je.operandCount, je.opcodeNumber)
	}
	if len(je.operands) != 4 {
		t.Errorf("Incorrect operand count %d, expected 4", len(je.operands))
	}
	if je.length != 7 {
		t.Errorf("Incorrect length %d, expected 7", je.length)
	}

	storew := decode(t, []uint8{0xE1, 0x57, 0x40, 0x02, 0x09})
	if storew.operandCount != VAR || storew.opcodeNumber != 1 || len(storew.operands) != 3 {
		t.Errorf("Incorrect decode %+v, expected storew with 3 operands", storew)
	}
	if storew.stores {
		t.Errorf("Incorrect store mark on storew")
	}
}

func TestDecodeBranchForms(t *testing.T) {
	onFalse := decode(t, []uint8{0x90, 0x00, 0x45})
	if onFalse.branch.onTrue || onFalse.branch.offset != 5 {
		t.Errorf("Incorrect branch %+v, expected on false offset 5", onFalse.branch)
	}

	negative := decode(t, []uint8{0x01, 0x01, 0x02, 0x3F, 0xFF})
	if negative.branch.onTrue || negative.branch.offset != -1 {
		t.Errorf("Incorrect branch %+v, expected on false offset -1", negative.branch)
	}
	if negative.length != 5 {
		t.Errorf("Incorrect length %d, expected 5", negative.length)
	}

	positive := decode(t, []uint8{0x01, 0x01, 0x02, 0x80, 0x20})
	if !positive.branch.onTrue || positive.branch.offset != 32 {
		t.Errorf("Incorrect branch %+v, expected on true offset 32", positive.branch)
	}
}

func TestDecodeInlineText(t *testing.T) {
	instruction := decode(t, []uint8{0xB2, 0x35, 0x51, 0xC6, 0x85})
	if instruction.text != "hello" {
		t.Errorf("Incorrect text %q, expected hello", instruction.text)
	}
	if instruction.length != 5 {
		t.Errorf("Incorrect length %d, expected 5", instruction.length)
	}
}

func TestDecodeInvalidOpcodes(t *testing.T) {
	var tests = []struct {
		name string
		code []uint8
	}{
		{"1op 8", []uint8{0x98, 0x01}},
		{"2op 0", []uint8{0x00, 0x01, 0x02}},
		{"var 12", []uint8{0xEC, 0xFF}},
		{"0op 14", []uint8{0xBE}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeInstruction(decodeTestCore(t, tt.code), 0x40); !errors.Is(err, ErrInvalidOpcode) {
				t.Errorf("Incorrect error %v, expected invalid opcode", err)
			}
		})
	}
}

func TestDecodeOffTheEnd(t *testing.T) {
	code := make([]uint8, 0x3F)
	code[0x3E] = 0x8C // jump, but its offset word is beyond the image

	if _, err := DecodeInstruction(decodeTestCore(t, code), 0x7E); !errors.Is(err, zcore.ErrAddressOutOfBounds) {
		t.Errorf("Incorrect error %v, expected out of bounds", err)
	}
}

func TestDisassembly(t *testing.T) {
	var tests = []struct {
		name     string
		code     []uint8
		expected string
	}{
		{"store and globals", []uint8{0x14, 0x05, 0x03, 0x10}, "[0x0040] add #0005 #0003 -> g00"},
		{"stack target", []uint8{0xE0, 0x3F, 0x02, 0x40, 0x00}, "[0x0040] call #0240 -> sp"},
		{"branch to rfalse", []uint8{0x41, 0x10, 0x01, 0x40}, "[0x0040] je g00 #0001 ?~rfalse"},
		{"negative jump", []uint8{0x8C, 0xFF, 0xF9}, "[0x0040] jump #fff9"},
		{"inline text", []uint8{0xB2, 0x35, 0x51, 0xC6, 0x85}, "[0x0040] print \"hello\""},
		{"branch destination", []uint8{0xA1, 0x00, 0x11, 0xC7}, "[0x0040] get_sibling sp -> g01 ?0x0049"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instruction := decode(t, tt.code)
			if rendered := instruction.String(); rendered != tt.expected {
				t.Errorf("Incorrect disassembly %q, expected %q", rendered, tt.expected)
			}
		})
	}
}
