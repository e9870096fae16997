package zmachine

import "fmt"

const maxCallDepth = 1024

// frame is one routine activation. The routine's locals and working values
// all live on the shared value stack; the frame just records where its window
// starts. returnPC points at the instruction after the call, storeTarget is
// the variable the call's result lands in.
type frame struct {
	returnPC    uint32
	storeTarget uint8
	localBase   int
	numLocals   int
}

// callStack keeps every routine's values in one contiguous slice. A routine
// may only pop what it pushed itself: the region below its locals belongs to
// its callers and is fenced off by floor.
type callStack struct {
	values []uint16
	frames []frame
}

func newCallStack() *callStack {
	return &callStack{
		values: make([]uint16, 0, 1024),
		// The initial routine has no locals and nowhere to return to.
		frames: []frame{{}},
	}
}

func (s *callStack) currentFrame() *frame {
	return &s.frames[len(s.frames)-1]
}

// floor is the lowest value index the current routine may touch through the
// stack variable.
func (s *callStack) floor() int {
	f := s.currentFrame()
	return f.localBase + f.numLocals
}

func (s *callStack) push(value uint16) {
	s.values = append(s.values, value)
}

func (s *callStack) pop() (uint16, error) {
	if len(s.values) <= s.floor() {
		return 0, fmt.Errorf("pop from empty routine stack: %w", ErrCallStack)
	}
	value := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return value, nil
}

func (s *callStack) peek() (uint16, error) {
	if len(s.values) <= s.floor() {
		return 0, fmt.Errorf("peek at empty routine stack: %w", ErrCallStack)
	}
	return s.values[len(s.values)-1], nil
}

func (s *callStack) replaceTop(value uint16) error {
	if len(s.values) <= s.floor() {
		return fmt.Errorf("write to empty routine stack: %w", ErrCallStack)
	}
	s.values[len(s.values)-1] = value
	return nil
}

func (s *callStack) readLocal(local uint8) (uint16, error) {
	f := s.currentFrame()
	if int(local) > f.numLocals {
		return 0, fmt.Errorf("read of local %d in a routine with %d: %w", local, f.numLocals, ErrInvalidVariable)
	}
	return s.values[f.localBase+int(local)-1], nil
}

func (s *callStack) writeLocal(local uint8, value uint16) error {
	f := s.currentFrame()
	if int(local) > f.numLocals {
		return fmt.Errorf("write of local %d in a routine with %d: %w", local, f.numLocals, ErrInvalidVariable)
	}
	s.values[f.localBase+int(local)-1] = value
	return nil
}

// pushFrame appends the new routine's locals to the shared value stack and
// opens a frame whose window starts above them.
func (s *callStack) pushFrame(returnPC uint32, storeTarget uint8, locals []uint16) error {
	if len(s.frames) >= maxCallDepth {
		return fmt.Errorf("call depth beyond %d frames: %w", maxCallDepth, ErrCallStack)
	}
	s.frames = append(s.frames, frame{
		returnPC:    returnPC,
		storeTarget: storeTarget,
		localBase:   len(s.values),
		numLocals:   len(locals),
	})
	s.values = append(s.values, locals...)
	return nil
}

// popFrame discards the routine's locals along with anything it left on the
// stack.
func (s *callStack) popFrame() (frame, error) {
	if len(s.frames) <= 1 {
		return frame{}, fmt.Errorf("return from the initial routine: %w", ErrCallStack)
	}
	f := *s.currentFrame()
	s.frames = s.frames[:len(s.frames)-1]
	s.values = s.values[:f.localBase]
	return f, nil
}

// depth reports how many values the current routine has on its window of the
// stack.
func (s *callStack) depth() int {
	return len(s.values) - s.floor()
}
