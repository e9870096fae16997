package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/olson-dan/gozork/selectstoryui"
	"github.com/olson-dan/gozork/zmachine"
)

var (
	romFilePath string

	appStyle    = lipgloss.NewStyle().Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Reverse(true)
)

type appState int

const (
	appRunning         appState = iota
	appWaitingForInput appState = iota
	appHalted          appState = iota
)

// interpreterEvent wraps whatever arrived on the machine's output channel
// into a bubbletea message.
type interpreterEvent struct{ event any }

type applicationModel struct {
	storyName   string
	rom         []uint8
	zMachine    *zmachine.ZMachine
	events      chan any
	sendChannel chan string
	outputText  string
	status      zmachine.StatusBar
	statusKnown bool
	appState    appState
	inputBox    textinput.Model
	width       int
	transcript  *os.File
}

// newApplicationModel builds a play screen around a fresh machine. The rom
// bytes are retained so a restart can load the story over again.
func newApplicationModel(storyName string, rom []uint8) (applicationModel, error) {
	inputChannel := make(chan string)
	outputChannel := make(chan any)

	zMachine, err := zmachine.LoadRom(rom, inputChannel, outputChannel)
	if err != nil {
		return applicationModel{}, err
	}

	inputBox := textinput.New()
	inputBox.Focus()
	inputBox.CharLimit = 156
	inputBox.Prompt = ""

	return applicationModel{
		storyName:   storyName,
		rom:         rom,
		zMachine:    zMachine,
		events:      outputChannel,
		sendChannel: inputChannel,
		appState:    appRunning,
		inputBox:    inputBox,
		width:       80,
	}, nil
}

func (m applicationModel) Init() tea.Cmd {
	return tea.Batch(
		runInterpreter(m.zMachine),
		waitForEvent(m.events),
		tea.SetWindowTitle(m.storyName),
	)
}

func runInterpreter(z *zmachine.ZMachine) tea.Cmd {
	return func() tea.Msg {
		z.Run()
		return nil
	}
}

func waitForEvent(events <-chan any) tea.Cmd {
	return func() tea.Msg {
		return interpreterEvent{<-events}
	}
}

func (m applicationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.inputBox.Width = msg.Width - 4
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.closeTranscript()
			return m, tea.Quit
		case tea.KeyEnter:
			if m.appState == appWaitingForInput {
				line := m.inputBox.Value()
				m.appState = appRunning
				m.appendText(line + "\n")
				m.sendChannel <- line
				m.inputBox.SetValue("")
				return m, nil
			}
		}
	case interpreterEvent:
		return m.handleInterpreterEvent(msg.event)
	}

	if m.appState == appWaitingForInput {
		m.inputBox, cmd = m.inputBox.Update(msg)
	}

	return m, cmd
}

func (m applicationModel) handleInterpreterEvent(event any) (tea.Model, tea.Cmd) {
	switch event := event.(type) {
	case string:
		m.appendText(event)
	case zmachine.StatusBar:
		m.status = event
		m.statusKnown = true
	case zmachine.StateChangeRequest:
		switch event {
		case zmachine.WaitForInput:
			m.appState = appWaitingForInput
		case zmachine.Running:
			m.appState = appRunning
		}
	case zmachine.TranscriptStateChange:
		m.setTranscript(bool(event))
	case zmachine.Quit:
		m.closeTranscript()
		return m, tea.Quit
	case zmachine.Restart:
		return m.restart()
	case zmachine.RuntimeError:
		m.appendText(fmt.Sprintf("\nThe story stopped: %s\n", string(event)))
		m.appState = appHalted
		return m, nil
	}

	return m, waitForEvent(m.events)
}

// restart throws the finished machine away and loads a fresh one from the
// retained rom bytes, keeping only the screen geometry and transcript file.
func (m applicationModel) restart() (tea.Model, tea.Cmd) {
	fresh, err := newApplicationModel(m.storyName, m.rom)
	if err != nil {
		m.appendText(fmt.Sprintf("\nRestart failed: %s\n", err))
		m.appState = appHalted
		return m, nil
	}

	fresh.width = m.width
	fresh.inputBox.Width = m.inputBox.Width
	fresh.transcript = m.transcript
	return fresh, tea.Batch(runInterpreter(fresh.zMachine), waitForEvent(fresh.events))
}

func (m *applicationModel) appendText(text string) {
	m.outputText += text
	if m.transcript != nil {
		m.transcript.WriteString(text) // nolint:errcheck
	}
}

func (m *applicationModel) setTranscript(enabled bool) {
	if enabled && m.transcript == nil {
		name := strings.TrimSuffix(m.storyName, filepath.Ext(m.storyName)) + ".transcript"
		if f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			m.transcript = f
		}
	} else if !enabled {
		m.closeTranscript()
	}
}

func (m *applicationModel) closeTranscript() {
	if m.transcript != nil {
		m.transcript.Close() // nolint:errcheck
		m.transcript = nil
	}
}

func (m applicationModel) statusLine() string {
	var right string
	if m.status.TimeBased {
		right = fmt.Sprintf("Time: %02d:%02d", m.status.Hours, m.status.Minutes)
	} else {
		right = fmt.Sprintf("Score: %d  Moves: %d", m.status.Score, m.status.Moves)
	}

	gap := m.width - lipgloss.Width(m.status.PlaceName) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}

	return statusStyle.Width(m.width).Render(" " + m.status.PlaceName + strings.Repeat(" ", gap) + right)
}

func (m applicationModel) View() string {
	s := strings.Builder{}

	if m.statusKnown {
		s.WriteString(m.statusLine())
		s.WriteString("\n")
	}

	s.WriteString(appStyle.Render(wordwrap.String(m.outputText, m.width-2)))

	if m.appState == appWaitingForInput {
		s.WriteString(appStyle.Render(m.inputBox.View()))
	}

	return s.String()
}

func init() {
	flag.StringVar(&romFilePath, "rom", "", "The path of a version 3 z-machine story file")
	flag.Parse()
}

func main() {
	var rootModel tea.Model

	if romFilePath == "" {
		rootModel = selectstoryui.New(func(storyName string, rom []uint8) (tea.Model, error) {
			return newApplicationModel(storyName, rom)
		})
	} else {
		romFileBytes, err := os.ReadFile(romFilePath)
		if err != nil {
			fmt.Println("Error reading story file:", err)
			os.Exit(1)
		}
		appModel, err := newApplicationModel(filepath.Base(romFilePath), romFileBytes)
		if err != nil {
			fmt.Println("Error loading story file:", err)
			os.Exit(1)
		}
		rootModel = appModel
	}

	if _, err := tea.NewProgram(rootModel).Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
