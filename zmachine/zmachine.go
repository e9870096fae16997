package zmachine

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"time"

	"github.com/olson-dan/gozork/dictionary"
	"github.com/olson-dan/gozork/zcore"
	"github.com/olson-dan/gozork/zobject"
	"github.com/olson-dan/gozork/zstring"
)

type ZMachine struct {
	Core          zcore.Core
	callStack     *callStack
	pc            uint32
	dictionary    *dictionary.Dictionary
	rng           *rand.Rand
	screenEnabled bool
	inputChannel  <-chan string
	outputChannel chan<- any
}

// LoadRom validates the story file and builds a machine ready to run. The
// machine reads player input lines from inputChannel and publishes events on
// outputChannel; see events.go for the types that arrive there. The rom slice
// is copied, so the caller keeps a pristine image to reload after a restart.
func LoadRom(rom []uint8, inputChannel <-chan string, outputChannel chan<- any) (*ZMachine, error) {
	core, err := zcore.LoadCore(slices.Clone(rom))
	if err != nil {
		return nil, err
	}

	dict, err := dictionary.ParseDictionary(&core, uint32(core.DictionaryBase))
	if err != nil {
		return nil, err
	}

	return &ZMachine{
		Core:          core,
		callStack:     newCallStack(),
		pc:            uint32(core.FirstInstruction),
		dictionary:    dict,
		rng:           rand.New(rand.NewSource(time.Now().UTC().UnixNano())),
		screenEnabled: true,
		inputChannel:  inputChannel,
		outputChannel: outputChannel,
	}, nil
}

// Run steps the machine until the game ends or something fatal happens. Quit
// and restart both finish the run; the Restart event tells the host to load a
// fresh machine if it wants one. Faults surface as a RuntimeError event
// rather than an error return so that every consumer sees the same stream.
func (z *ZMachine) Run() {
	for {
		if err := z.StepMachine(); err != nil {
			if !errors.Is(err, ErrQuit) && !errors.Is(err, ErrRestart) {
				z.outputChannel <- RuntimeError(err.Error())
			}
			return
		}
	}
}

// StepMachine decodes and executes one instruction.
func (z *ZMachine) StepMachine() error {
	instruction, err := DecodeInstruction(&z.Core, z.pc)
	if err != nil {
		return err
	}
	return z.execute(&instruction)
}

// DisassembleNext renders the instruction the program counter points at
// without executing it.
func (z *ZMachine) DisassembleNext() (string, error) {
	instruction, err := DecodeInstruction(&z.Core, z.pc)
	if err != nil {
		return "", err
	}
	return instruction.String(), nil
}

// resolveOperands turns the decoded operands into values, reading (and for
// the stack, popping) variables left to right.
func (z *ZMachine) resolveOperands(instruction *Instruction) ([]uint16, error) {
	values := make([]uint16, len(instruction.operands))
	for i, operand := range instruction.operands {
		if operand.operandType == variable {
			value, err := z.readVariable(uint8(operand.value))
			if err != nil {
				return nil, err
			}
			values[i] = value
		} else {
			values[i] = operand.value
		}
	}
	return values, nil
}

func minimumOperands(count OperandCount, number uint8) int {
	switch count {
	case OP0:
		return 0
	case OP1:
		return 1
	case OP2:
		if number == 1 { // je compares whatever it is given
			return 1
		}
		return 2
	default: // VAR
		switch number {
		case 1, 2, 3: // storew, storeb, put_prop
			return 3
		case 4: // sread
			return 2
		default:
			return 1
		}
	}
}

func (z *ZMachine) execute(instruction *Instruction) error {
	z.pc = instruction.address + instruction.length

	values, err := z.resolveOperands(instruction)
	if err != nil {
		return err
	}
	if len(values) < minimumOperands(instruction.operandCount, instruction.opcodeNumber) {
		name, _ := opcodeName(instruction.operandCount, instruction.opcodeNumber)
		return fmt.Errorf("%s at 0x%x with only %d operands: %w", name, instruction.address, len(values), ErrInvalidOpcode)
	}

	switch instruction.operandCount {
	case OP0:
		switch instruction.opcodeNumber {
		case 0: // RTRUE
			return z.returnFromRoutine(1)

		case 1: // RFALSE
			return z.returnFromRoutine(0)

		case 2: // PRINT
			z.appendText(instruction.text)
			return nil

		case 3: // PRINT_RET
			z.appendText(instruction.text + "\n")
			return z.returnFromRoutine(1)

		case 4: // NOP
			return nil

		case 5: // SAVE
			// No save support; a failed save branches on false.
			return z.branchOn(instruction, false)

		case 6: // RESTORE
			return z.branchOn(instruction, false)

		case 7: // RESTART
			z.outputChannel <- Restart{}
			return ErrRestart

		case 8: // RET_POPPED
			value, err := z.callStack.pop()
			if err != nil {
				return err
			}
			return z.returnFromRoutine(value)

		case 9: // POP
			_, err := z.callStack.pop()
			return err

		case 10: // QUIT
			z.outputChannel <- Quit{}
			return ErrQuit

		case 11: // NEW_LINE
			z.appendText("\n")
			return nil

		case 12: // SHOW_STATUS
			return z.showStatus()

		default: // VERIFY
			return z.branchOn(instruction, z.Core.ComputeChecksum() == z.Core.FileChecksum)
		}

	case OP1:
		switch instruction.opcodeNumber {
		case 0: // JZ
			return z.branchOn(instruction, values[0] == 0)

		case 1: // GET_SIBLING
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			if err := z.writeVariable(instruction.storeTarget, obj.Sibling); err != nil {
				return err
			}
			return z.branchOn(instruction, obj.Sibling != 0)

		case 2: // GET_CHILD
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			if err := z.writeVariable(instruction.storeTarget, obj.Child); err != nil {
				return err
			}
			return z.branchOn(instruction, obj.Child != 0)

		case 3: // GET_PARENT
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, obj.Parent)

		case 4: // GET_PROP_LEN
			length, err := zobject.GetPropertyLength(&z.Core, uint32(values[0]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, length)

		case 5: // INC
			variable := uint8(values[0])
			value, err := z.readVariable(variable)
			if err != nil {
				return err
			}
			return z.writeVariable(variable, value+1)

		case 6: // DEC
			variable := uint8(values[0])
			value, err := z.readVariable(variable)
			if err != nil {
				return err
			}
			return z.writeVariable(variable, value-1)

		case 7: // PRINT_ADDR
			text, _, err := zstring.Decode(&z.Core, uint32(values[0]))
			if err != nil {
				return err
			}
			z.appendText(text)
			return nil

		case 9: // REMOVE_OBJ
			return zobject.Remove(&z.Core, values[0])

		case 10: // PRINT_OBJ
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			z.appendText(obj.Name)
			return nil

		case 11: // RET
			return z.returnFromRoutine(values[0])

		case 12: // JUMP
			z.pc = uint32(int64(z.pc) + int64(int16(values[0])) - 2)
			return nil

		case 13: // PRINT_PADDR
			text, _, err := zstring.Decode(&z.Core, z.Core.StringAddress(values[0]))
			if err != nil {
				return err
			}
			z.appendText(text)
			return nil

		case 14: // LOAD
			value, err := z.readVariableInPlace(uint8(values[0]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, value)

		default: // NOT
			return z.writeVariable(instruction.storeTarget, ^values[0])
		}

	case OP2:
		switch instruction.opcodeNumber {
		case 1: // JE
			branch := false
			for _, other := range values[1:] {
				if values[0] == other {
					branch = true
				}
			}
			return z.branchOn(instruction, branch)

		case 2: // JL
			return z.branchOn(instruction, int16(values[0]) < int16(values[1]))

		case 3: // JG
			return z.branchOn(instruction, int16(values[0]) > int16(values[1]))

		case 4: // DEC_CHK
			variable := uint8(values[0])
			value, err := z.readVariable(variable)
			if err != nil {
				return err
			}
			value--
			if err := z.writeVariable(variable, value); err != nil {
				return err
			}
			return z.branchOn(instruction, int16(value) < int16(values[1]))

		case 5: // INC_CHK
			variable := uint8(values[0])
			value, err := z.readVariable(variable)
			if err != nil {
				return err
			}
			value++
			if err := z.writeVariable(variable, value); err != nil {
				return err
			}
			return z.branchOn(instruction, int16(value) > int16(values[1]))

		case 6: // JIN
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			return z.branchOn(instruction, obj.Parent == values[1])

		case 7: // TEST
			return z.branchOn(instruction, values[0]&values[1] == values[1])

		case 8: // OR
			return z.writeVariable(instruction.storeTarget, values[0]|values[1])

		case 9: // AND
			return z.writeVariable(instruction.storeTarget, values[0]&values[1])

		case 10: // TEST_ATTR
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			set, err := obj.TestAttribute(values[1])
			if err != nil {
				return err
			}
			return z.branchOn(instruction, set)

		case 11: // SET_ATTR
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			return obj.SetAttribute(&z.Core, values[1])

		case 12: // CLEAR_ATTR
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			return obj.ClearAttribute(&z.Core, values[1])

		case 13: // STORE
			return z.writeVariableInPlace(uint8(values[0]), values[1])

		case 14: // INSERT_OBJ
			return zobject.Insert(&z.Core, values[0], values[1])

		case 15: // LOADW
			value, err := z.Core.ReadHalfWord(uint32(values[0] + 2*values[1]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, value)

		case 16: // LOADB
			value, err := z.Core.ReadZByte(uint32(values[0] + values[1]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, uint16(value))

		case 17: // GET_PROP
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			prop, err := obj.GetProperty(&z.Core, uint8(values[1]))
			if err != nil {
				return err
			}
			value, err := prop.Value()
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, value)

		case 18: // GET_PROP_ADDR
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			prop, err := obj.GetProperty(&z.Core, uint8(values[1]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, uint16(prop.DataAddress))

		case 19: // GET_NEXT_PROP
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			next, err := obj.NextProperty(&z.Core, uint8(values[1]))
			if err != nil {
				return err
			}
			return z.writeVariable(instruction.storeTarget, uint16(next))

		case 20: // ADD
			return z.writeVariable(instruction.storeTarget, values[0]+values[1])

		case 21: // SUB
			return z.writeVariable(instruction.storeTarget, values[0]-values[1])

		case 22: // MUL
			return z.writeVariable(instruction.storeTarget, values[0]*values[1])

		case 23: // DIV
			if values[1] == 0 {
				return fmt.Errorf("div at 0x%x: %w", instruction.address, ErrDivisionByZero)
			}
			return z.writeVariable(instruction.storeTarget, uint16(int16(values[0])/int16(values[1])))

		default: // MOD
			if values[1] == 0 {
				return fmt.Errorf("mod at 0x%x: %w", instruction.address, ErrDivisionByZero)
			}
			return z.writeVariable(instruction.storeTarget, uint16(int16(values[0])%int16(values[1])))
		}

	default: // VAR
		switch instruction.opcodeNumber {
		case 0: // CALL
			return z.call(instruction, values)

		case 1: // STOREW
			return z.Core.WriteHalfWord(uint32(values[0]+2*values[1]), values[2])

		case 2: // STOREB
			return z.Core.WriteZByte(uint32(values[0]+values[1]), uint8(values[2]))

		case 3: // PUT_PROP
			obj, err := zobject.GetObject(&z.Core, values[0])
			if err != nil {
				return err
			}
			return obj.SetProperty(&z.Core, uint8(values[1]), values[2])

		case 4: // SREAD
			return z.read(values)

		case 5: // PRINT_CHAR
			if chr, ok := zstring.ZsciiToUnicode(values[0]); ok {
				z.appendText(string(chr))
			}
			return nil

		case 6: // PRINT_NUM
			z.appendText(strconv.Itoa(int(int16(values[0]))))
			return nil

		case 7: // RANDOM
			return z.random(instruction, int16(values[0]))

		case 8: // PUSH
			z.callStack.push(values[0])
			return nil

		case 9: // PULL
			value, err := z.callStack.pop()
			if err != nil {
				return err
			}
			return z.writeVariableInPlace(uint8(values[0]), value)

		case 10, 11: // SPLIT_WINDOW, SET_WINDOW
			// The header advertises no screen splitting, but some games call
			// these regardless. Ignore them.
			return nil

		case 19: // OUTPUT_STREAM
			return z.selectOutputStream(int16(values[0]))

		case 20: // INPUT_STREAM
			if values[0] != 0 {
				return fmt.Errorf("input stream %d not supported: %w", values[0], ErrInvalidOpcode)
			}
			return nil

		default: // SOUND_EFFECT
			// Bleeps only in version 3 games, and no audio backend to bleep
			// with.
			return nil
		}
	}
}

// call pushes a frame for the routine at the packed address in values[0],
// filling its locals from the routine header's defaults and then from the
// remaining operands. Calling packed address 0 is legal: nothing runs and
// the result is 0.
func (z *ZMachine) call(instruction *Instruction, values []uint16) error {
	if values[0] == 0 {
		return z.writeVariable(instruction.storeTarget, 0)
	}
	routineAddress := z.Core.RoutineAddress(values[0])

	numLocals, err := z.Core.ReadZByte(routineAddress)
	if err != nil {
		return err
	}
	if numLocals > 15 {
		return fmt.Errorf("routine at 0x%x declares %d locals: %w", routineAddress, numLocals, zcore.ErrStoryFormat)
	}

	locals := make([]uint16, numLocals)
	for i := range locals {
		if locals[i], err = z.Core.ReadHalfWord(routineAddress + 1 + 2*uint32(i)); err != nil {
			return err
		}
	}
	copy(locals, values[1:])

	if err := z.callStack.pushFrame(z.pc, instruction.storeTarget, locals); err != nil {
		return err
	}
	z.pc = routineAddress + 1 + 2*uint32(numLocals)

	return nil
}

func (z *ZMachine) returnFromRoutine(value uint16) error {
	frame, err := z.callStack.popFrame()
	if err != nil {
		return err
	}
	z.pc = frame.returnPC
	return z.writeVariable(frame.storeTarget, value)
}

// branchOn follows the instruction's branch argument when the condition
// matches its polarity. Offsets 0 and 1 return false or true from the
// routine; anything else jumps relative to the instruction's end.
func (z *ZMachine) branchOn(instruction *Instruction, condition bool) error {
	if condition != instruction.branch.onTrue {
		return nil
	}

	switch instruction.branch.offset {
	case 0:
		return z.returnFromRoutine(0)
	case 1:
		return z.returnFromRoutine(1)
	default:
		z.pc = uint32(int64(instruction.address) + int64(instruction.length) + int64(instruction.branch.offset) - 2)
		return nil
	}
}

func (z *ZMachine) random(instruction *Instruction, n int16) error {
	result := uint16(0)

	switch {
	case n < 0: // Reseed deterministically, for scripted tests
		z.rng = rand.New(rand.NewSource(int64(n)))
	case n == 0:
		z.rng = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	default:
		result = uint16(z.rng.Intn(int(n))) + 1
	}

	return z.writeVariable(instruction.storeTarget, result)
}

// selectOutputStream handles the version 3 streams: 1 is the screen, 2 the
// transcript. Selecting the transcript sets bit 0 of Flags 2, which games
// poll, and raises an event for the consumer, who owns the transcript file.
func (z *ZMachine) selectOutputStream(stream int16) error {
	switch stream {
	case 1:
		z.screenEnabled = true
	case -1:
		z.screenEnabled = false
	case 2, -2:
		flags, err := z.Core.ReadHalfWord(0x10)
		if err != nil {
			return err
		}
		if stream > 0 {
			flags |= 1
		} else {
			flags &^= 1
		}
		if err := z.Core.WriteHalfWord(0x10, flags); err != nil {
			return err
		}
		z.outputChannel <- TranscriptStateChange(stream > 0)
	default:
		return fmt.Errorf("output stream %d not supported: %w", stream, ErrInvalidOpcode)
	}
	return nil
}

func (z *ZMachine) appendText(text string) {
	if z.screenEnabled && text != "" {
		z.outputChannel <- text
	}
}
