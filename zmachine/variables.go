package zmachine

// Variable numbering: 0 is the routine stack, 1 to 15 are the current
// routine's locals and 16 to 255 are the globals, stored as big-endian words
// in dynamic memory.

const globalVariableStart = 16

func (z *ZMachine) globalAddress(variable uint8) uint32 {
	return uint32(z.Core.GlobalVariableBase) + 2*(uint32(variable)-globalVariableStart)
}

func (z *ZMachine) readVariable(variable uint8) (uint16, error) {
	switch {
	case variable == 0:
		return z.callStack.pop()
	case variable < globalVariableStart:
		return z.callStack.readLocal(variable)
	default:
		return z.Core.ReadHalfWord(z.globalAddress(variable))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16) error {
	switch {
	case variable == 0:
		z.callStack.push(value)
		return nil
	case variable < globalVariableStart:
		return z.callStack.writeLocal(variable, value)
	default:
		return z.Core.WriteHalfWord(z.globalAddress(variable), value)
	}
}

// readVariableInPlace serves load, store and the write half of pull. For
// those, naming the stack means its top value, read or replaced without
// moving the stack pointer. Every other opcode that takes a variable number
// as an operand (inc, dec, inc_chk, dec_chk) goes through the plain
// readVariable/writeVariable pair and so pops and pushes as usual.
func (z *ZMachine) readVariableInPlace(variable uint8) (uint16, error) {
	if variable == 0 {
		return z.callStack.peek()
	}
	return z.readVariable(variable)
}

func (z *ZMachine) writeVariableInPlace(variable uint8, value uint16) error {
	if variable == 0 {
		return z.callStack.replaceTop(value)
	}
	return z.writeVariable(variable, value)
}
