package zmachine

import (
	"errors"
	"testing"
)

func TestValueStack(t *testing.T) {
	s := newCallStack()
	s.push(10)
	s.push(20)

	if value, err := s.peek(); err != nil || value != 20 {
		t.Errorf("Incorrect peek %d (%v), expected 20", value, err)
	}
	if s.depth() != 2 {
		t.Errorf("Incorrect depth %d after peek, expected 2", s.depth())
	}

	if err := s.replaceTop(21); err != nil {
		t.Errorf("Unexpected error replacing top of stack: %v", err)
	}

	if value, err := s.pop(); err != nil || value != 21 {
		t.Errorf("Incorrect pop %d (%v), expected 21", value, err)
	}
	if value, err := s.pop(); err != nil || value != 10 {
		t.Errorf("Incorrect pop %d (%v), expected 10", value, err)
	}

	if _, err := s.pop(); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v popping an empty stack", err)
	}
	if _, err := s.peek(); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v peeking an empty stack", err)
	}
	if err := s.replaceTop(1); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v writing an empty stack", err)
	}
}

func TestLocals(t *testing.T) {
	s := newCallStack()
	if err := s.pushFrame(0x1234, 5, []uint16{7, 8, 9}); err != nil {
		t.Fatalf("Unexpected error pushing frame: %v", err)
	}

	for i, expected := range []uint16{7, 8, 9} {
		if value, err := s.readLocal(uint8(i + 1)); err != nil || value != expected {
			t.Errorf("Incorrect local %d value %d (%v), expected %d", i+1, value, err, expected)
		}
	}

	if err := s.writeLocal(2, 0xbeef); err != nil {
		t.Errorf("Unexpected error writing local 2: %v", err)
	}
	if value, _ := s.readLocal(2); value != 0xbeef {
		t.Errorf("Incorrect local 2 value 0x%x after write, expected 0xbeef", value)
	}

	if _, err := s.readLocal(4); !errors.Is(err, ErrInvalidVariable) {
		t.Errorf("Incorrect error %v reading local 4 of a routine with 3", err)
	}
	if err := s.writeLocal(4, 1); !errors.Is(err, ErrInvalidVariable) {
		t.Errorf("Incorrect error %v writing local 4 of a routine with 3", err)
	}
}

func TestFrameFencing(t *testing.T) {
	s := newCallStack()
	s.push(99) // belongs to the caller

	if err := s.pushFrame(0x1234, 0, []uint16{1}); err != nil {
		t.Fatalf("Unexpected error pushing frame: %v", err)
	}
	if s.depth() != 0 {
		t.Errorf("Incorrect depth %d at routine entry, expected 0", s.depth())
	}
	if _, err := s.pop(); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v popping through the frame floor", err)
	}

	s.push(7) // routine rubbish, discarded by the return
	frame, err := s.popFrame()
	if err != nil {
		t.Fatalf("Unexpected error popping frame: %v", err)
	}
	if frame.returnPC != 0x1234 {
		t.Errorf("Incorrect return pc 0x%x, expected 0x1234", frame.returnPC)
	}

	if value, err := s.pop(); err != nil || value != 99 {
		t.Errorf("Incorrect value %d (%v) left for the caller, expected 99", value, err)
	}
}

func TestReturnFromInitialRoutine(t *testing.T) {
	s := newCallStack()
	if _, err := s.popFrame(); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v returning from the initial routine", err)
	}
}

func TestCallDepthLimit(t *testing.T) {
	s := newCallStack()
	for i := 1; i < maxCallDepth; i++ {
		if err := s.pushFrame(0, 0, nil); err != nil {
			t.Fatalf("Unexpected error at frame %d: %v", i, err)
		}
	}
	if err := s.pushFrame(0, 0, nil); !errors.Is(err, ErrCallStack) {
		t.Errorf("Incorrect error %v beyond the call depth limit", err)
	}
}
