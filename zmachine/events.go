package zmachine

// The interpreter never draws a screen. Everything the player should see is
// published on the output channel as one of the event types below, and the
// consumer (a terminal UI, a test harness) decides how to render it. Plain
// text arrives as an ordinary string.

// StatusBar describes the top line of the screen. It is emitted before every
// read and whenever the game executes show_status. Score games fill Score and
// Moves, time games fill Hours and Minutes.
type StatusBar struct {
	PlaceName string
	Score     int
	Moves     int
	Hours     int
	Minutes   int
	TimeBased bool
}

// StateChangeRequest tells the consumer whether the interpreter is blocked
// waiting on the input channel or free running.
type StateChangeRequest int

const (
	WaitForInput StateChangeRequest = iota
	Running      StateChangeRequest = iota
)

// TranscriptStateChange reports the game selecting or deselecting the
// transcript output stream. Writing the transcript file is the consumer's
// business.
type TranscriptStateChange bool

// Quit is sent once, just before the machine halts cleanly.
type Quit struct{}

// Restart is sent when the game asks to start over. The run loop returns
// afterwards; the consumer decides whether to load a fresh machine from its
// copy of the story file.
type Restart struct{}

// RuntimeError carries the description of the fault that stopped the machine.
// No further events follow it.
type RuntimeError string
