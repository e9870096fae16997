package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/olson-dan/gozork/zmachine"
)

// TestResult captures the outcome of running a single story up to its first
// input prompt.
type TestResult struct {
	Filename     string   `json:"filename"`
	Version      uint8    `json:"version"`
	Success      bool     `json:"success"`
	PanicMessage string   `json:"panic_message,omitempty"`
	StackTrace   string   `json:"stack_trace,omitempty"`
	FirstScreen  []string `json:"first_screen,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

func main() {
	storiesDir := flag.String("stories", "files", "Directory containing z-machine story files")
	outputDir := flag.String("output", "testdata", "Directory to write results to")
	singleGame := flag.String("game", "", "Test a single story file instead of all of them")
	trace := flag.Bool("trace", false, "Print a disassembly of every executed instruction to stderr")
	flag.Parse()

	if *singleGame != "" {
		runSingleGame(*singleGame, *trace)
		return
	}

	runAllGames(*storiesDir, *outputDir, *trace)
}

func runAllGames(storiesDir, outputDir string, trace bool) {
	if _, err := os.Stat(storiesDir); os.IsNotExist(err) {
		fmt.Printf("Stories directory not found: %s\n", storiesDir)
		fmt.Println("Run 'go run ./cmd/scraper' first to download stories.")
		os.Exit(1)
	}

	entries, err := os.ReadDir(storiesDir)
	if err != nil {
		fmt.Printf("Failed to read stories directory: %v\n", err)
		os.Exit(1)
	}

	var games []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".z3") {
			games = append(games, filepath.Join(storiesDir, entry.Name()))
		}
	}

	if len(games) == 0 {
		fmt.Printf("No story files found in %s\n", storiesDir)
		os.Exit(1)
	}

	fmt.Printf("Found %d stories to test\n", len(games))

	var results []TestResult

	for i, gamePath := range games {
		result := runGameTest(gamePath, trace)
		results = append(results, result)

		status := "✓"
		if !result.Success {
			status = "✗"
		}
		fmt.Printf("[%d/%d] %s %s\n", i+1, len(games), status, result.Filename)
		if !result.Success && result.ErrorMessage != "" {
			fmt.Printf("        Error: %s\n", result.ErrorMessage)
		}
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	resultsPath := filepath.Join(outputDir, "test_results.json")
	resultsJSON, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile(resultsPath, resultsJSON, 0644); err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
	} else {
		fmt.Printf("\nResults written to %s\n", resultsPath)
	}

	passed := 0
	failed := 0
	for _, r := range results {
		if r.Success {
			passed++
		} else {
			failed++
		}
	}
	fmt.Printf("\n=== SUMMARY ===\nPassed: %d\nFailed: %d\nTotal: %d\n", passed, failed, len(results))

	screenshotsPath := filepath.Join(outputDir, "screenshots.txt")
	var screenshots strings.Builder
	for _, r := range results {
		fmt.Fprintf(&screenshots, "=== %s (v%d) ===\n", r.Filename, r.Version)
		if r.Success {
			for _, line := range r.FirstScreen {
				screenshots.WriteString(line + "\n")
			}
		} else {
			fmt.Fprintf(&screenshots, "ERROR: %s\n", r.ErrorMessage)
			if r.PanicMessage != "" {
				fmt.Fprintf(&screenshots, "PANIC: %s\n", r.PanicMessage)
			}
		}
		screenshots.WriteString("\n")
	}
	os.WriteFile(screenshotsPath, []byte(screenshots.String()), 0644) // nolint:errcheck
}

func runSingleGame(gamePath string, trace bool) {
	if _, err := os.Stat(gamePath); os.IsNotExist(err) {
		fmt.Printf("Story file not found: %s\n", gamePath)
		os.Exit(1)
	}

	result := runGameTest(gamePath, trace)

	fmt.Printf("Story: %s\n", result.Filename)
	fmt.Printf("Version: %d\n", result.Version)
	fmt.Printf("Success: %v\n", result.Success)

	if result.PanicMessage != "" {
		fmt.Printf("Panic: %s\n", result.PanicMessage)
		fmt.Printf("Stack: %s\n", result.StackTrace)
	}

	if result.ErrorMessage != "" {
		fmt.Printf("Error: %s\n", result.ErrorMessage)
	}

	fmt.Printf("First Screen:\n%s\n", strings.Join(result.FirstScreen, "\n"))
}

// runTraced mirrors Run but disassembles each instruction before executing
// it. Quit and restart are clean endings, anything else is a fault.
func runTraced(z *zmachine.ZMachine) error {
	for {
		if text, err := z.DisassembleNext(); err == nil {
			fmt.Fprintln(os.Stderr, text)
		}
		if err := z.StepMachine(); err != nil {
			if errors.Is(err, zmachine.ErrQuit) || errors.Is(err, zmachine.ErrRestart) {
				return nil
			}
			return err
		}
	}
}

func runGameTest(gamePath string, trace bool) (result TestResult) {
	result.Filename = filepath.Base(gamePath)

	// One broken story must not kill the whole batch.
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.PanicMessage = fmt.Sprintf("%v", r)
			result.StackTrace = string(debug.Stack())
		}
	}()

	storyBytes, err := os.ReadFile(gamePath)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("Failed to read file: %v", err)
		return
	}

	if len(storyBytes) < 64 {
		result.ErrorMessage = "File too small to be a valid story file"
		return
	}
	result.Version = storyBytes[0]

	outputChannel := make(chan any, 100)
	inputChannel := make(chan string, 10)

	z, err := zmachine.LoadRom(storyBytes, inputChannel, outputChannel)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("Failed to load story: %v", err)
		return
	}

	var screenOutput []string
	done := make(chan bool)
	timeout := time.After(5 * time.Second)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				result.PanicMessage = fmt.Sprintf("Panic in Run: %v", r)
				result.StackTrace = string(debug.Stack())
				done <- true
			}
		}()
		if trace {
			if err := runTraced(z); err != nil {
				result.ErrorMessage = err.Error()
			}
		} else {
			z.Run()
		}
		done <- true
	}()

	collectOutput := true
	for collectOutput {
		select {
		case msg := <-outputChannel:
			switch v := msg.(type) {
			case string:
				screenOutput = append(screenOutput, strings.Split(v, "\n")...)
			case zmachine.StateChangeRequest:
				if v == zmachine.WaitForInput {
					// The first prompt is the finish line. Feed the story a
					// quit so its goroutine can unwind.
					collectOutput = false
					inputChannel <- "quit"
				}
			case zmachine.Quit:
				collectOutput = false
			case zmachine.Restart:
				collectOutput = false
			case zmachine.RuntimeError:
				result.ErrorMessage = string(v)
				return
			}
		case <-timeout:
			result.ErrorMessage = "Timeout waiting for the first screen"
			return
		case <-done:
			collectOutput = false
		}
	}

	result.Success = result.ErrorMessage == "" && result.PanicMessage == ""
	result.FirstScreen = screenOutput
	return
}
