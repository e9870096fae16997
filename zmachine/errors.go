package zmachine

import "errors"

// ErrQuit and ErrRestart are not faults. They flow out of StepMachine so the
// run loop can unwind cleanly from the middle of an instruction.
var (
	ErrQuit    = errors.New("quit")
	ErrRestart = errors.New("restart")
)

var (
	ErrInvalidOpcode   = errors.New("invalid opcode")
	ErrInvalidVariable = errors.New("invalid variable")
	ErrCallStack       = errors.New("call stack error")
	ErrDivisionByZero  = errors.New("division by zero")
)
