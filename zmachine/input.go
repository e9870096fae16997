package zmachine

import "strings"

// read implements the sread opcode. The status bar is refreshed, the machine
// blocks on the input channel for a line, and then the line lands in the text
// buffer and its tokenisation in the parse buffer.
func (z *ZMachine) read(values []uint16) error {
	if err := z.showStatus(); err != nil {
		return err
	}

	z.outputChannel <- WaitForInput
	line := <-z.inputChannel
	z.outputChannel <- Running

	textBuffer := uint32(values[0])
	parseBuffer := uint32(values[1])

	maxLetters, err := z.Core.ReadZByte(textBuffer)
	if err != nil {
		return err
	}

	// Reduce to lower case and keep only printable ascii. Anything exotic
	// becomes a space so the recorded word positions stay honest.
	var stored strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(line)) {
		if stored.Len() >= int(maxLetters) {
			break
		}
		if r < 32 || r > 126 {
			r = ' '
		}
		stored.WriteRune(r)
	}
	text := stored.String()

	for i := 0; i < len(text); i++ {
		if err := z.Core.WriteZByte(textBuffer+1+uint32(i), text[i]); err != nil {
			return err
		}
	}
	if err := z.Core.WriteZByte(textBuffer+1+uint32(len(text)), 0); err != nil {
		return err
	}

	return z.tokenise(parseBuffer, text)
}

// tokenise records each word's dictionary address (0 when unrecognised),
// letter count and position in the parse buffer's four byte entries.
func (z *ZMachine) tokenise(parseBuffer uint32, text string) error {
	maxTokens, err := z.Core.ReadZByte(parseBuffer)
	if err != nil {
		return err
	}

	tokens := z.dictionary.Tokenize(text)
	if len(tokens) > int(maxTokens) {
		tokens = tokens[:maxTokens]
	}

	if err := z.Core.WriteZByte(parseBuffer+1, uint8(len(tokens))); err != nil {
		return err
	}
	for i, token := range tokens {
		entry := parseBuffer + 2 + 4*uint32(i)
		if err := z.Core.WriteHalfWord(entry, z.dictionary.FindWord(token.Text)); err != nil {
			return err
		}
		if err := z.Core.WriteZByte(entry+2, uint8(len(token.Text))); err != nil {
			return err
		}
		// Positions are relative to the start of the text buffer, whose
		// first letter sits just after the size byte.
		if err := z.Core.WriteZByte(entry+3, token.Position+1); err != nil {
			return err
		}
	}

	return nil
}
