package dictionary_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/olson-dan/gozork/dictionary"
	"github.com/olson-dan/gozork/zcore"
)

// buildDictionary assembles a story whose dictionary at 0x40 holds five
// entries, sorted by encoded bytes as the compiler emits them:
//
//	0x47 "."       0x4e "brass"   0x55 "go"
//	0x5c "lantern" 0x63 "take"
//
// with ".", "," and a double quote as separators.
func buildDictionary(t *testing.T) *dictionary.Dictionary {
	t.Helper()

	story := make([]uint8, 0x80)
	story[0] = 3
	binary.BigEndian.PutUint16(story[0x0e:0x10], 0x80) // static memory base
	binary.BigEndian.PutUint16(story[0x08:0x0a], 0x40) // dictionary base

	copy(story[0x40:], []uint8{
		0x03, '.', ',', '"', // separators
		0x07,       // entry length
		0x00, 0x05, // entry count
		0x16, 0x45, 0x94, 0xa5, 0, 0, 0,
		0x1e, 0xe6, 0xe3, 0x05, 0, 0, 0,
		0x32, 0x85, 0x94, 0xa5, 0, 0, 0,
		0x44, 0xd3, 0xe5, 0x57, 0, 0, 0,
		0x64, 0xd0, 0xa8, 0xa5, 0, 0, 0,
	})

	core, err := zcore.LoadCore(story)
	if err != nil {
		t.Fatalf("test story failed to load: %v", err)
	}
	dict, err := dictionary.ParseDictionary(&core, uint32(core.DictionaryBase))
	if err != nil {
		t.Fatalf("dictionary failed to parse: %v", err)
	}
	return dict
}

func TestParseDictionary(t *testing.T) {
	dict := buildDictionary(t)

	// "lantern" was truncated to 6 z-characters when encoded, so it decodes
	// back without its final letter.
	expected := []string{".", "brass", "go", "lanter", "take"}
	if words := dict.GetWords(); !slices.Equal(words, expected) {
		t.Errorf("Incorrect words %v, expected %v", words, expected)
	}
}

func TestFind(t *testing.T) {
	dict := buildDictionary(t)

	if addr := dict.Find([]uint8{0x32, 0x85, 0x94, 0xa5}); addr != 0x55 {
		t.Errorf(`Find("go") returned %x, expected 0x55`, addr)
	}

	tests := []struct {
		word string
		want uint16
	}{
		{"take", 0x63},
		{"brass", 0x4e},
		{"lantern", 0x5c},
		{"lanterns", 0x5c}, // truncates to the same 6 z-characters
		{"go", 0x55},
		{".", 0x47},
		{"qqq", 0},
	}
	for _, tt := range tests {
		if got := dict.FindWord(tt.word); got != tt.want {
			t.Errorf(`FindWord(%q) returned %x, expected %x`, tt.word, got, tt.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	dict := buildDictionary(t)

	tests := []struct {
		name string
		line string
		want []dictionary.Token
	}{
		{
			"spaces and trailing separator",
			"take brass lantern.",
			[]dictionary.Token{{Text: "take", Position: 0}, {Text: "brass", Position: 5}, {Text: "lantern", Position: 11}, {Text: ".", Position: 18}},
		},
		{
			"separator inside the line",
			"look, quickly",
			[]dictionary.Token{{Text: "look", Position: 0}, {Text: ",", Position: 4}, {Text: "quickly", Position: 6}},
		},
		{
			"repeated and trailing spaces",
			"go  east ",
			[]dictionary.Token{{Text: "go", Position: 0}, {Text: "east", Position: 4}},
		},
		{
			"separators stand alone",
			"...",
			[]dictionary.Token{{Text: ".", Position: 0}, {Text: ".", Position: 1}, {Text: ".", Position: 2}},
		},
		{"empty line", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dict.Tokenize(tt.line); !slices.Equal(got, tt.want) {
				t.Errorf("Incorrect tokens %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTokenizeAndFind(t *testing.T) {
	dict := buildDictionary(t)

	tokens := dict.Tokenize("take brass lantern.")
	if len(tokens) != 4 {
		t.Fatalf("Expected 4 tokens, got %d", len(tokens))
	}

	expected := []uint16{0x63, 0x4e, 0x5c, 0x47}
	for i, token := range tokens {
		if addr := dict.FindWord(token.Text); addr != expected[i] {
			t.Errorf("Token %q resolved to %x, expected %x", token.Text, addr, expected[i])
		}
	}
}
