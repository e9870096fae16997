package zcore_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/olson-dan/gozork/zcore"
)

// minimalStory builds an in-memory story image with a valid version 3 header
// and no declared file length, so the loader skips the checksum.
func minimalStory(size int, staticBase uint16) []uint8 {
	story := make([]uint8, size)
	story[0x00] = 3
	binary.BigEndian.PutUint16(story[0x0e:0x10], staticBase)
	return story
}

func sealStory(story []uint8) {
	binary.BigEndian.PutUint16(story[0x1a:0x1c], uint16(len(story)/2))
	sum := uint16(0)
	for _, b := range story[0x40:] {
		sum += uint16(b)
	}
	binary.BigEndian.PutUint16(story[0x1c:0x1e], sum)
}

func TestLoadCoreRejectsBadImages(t *testing.T) {
	tests := []struct {
		name  string
		story []uint8
	}{
		{"too short for header", make([]uint8, 0x20)},
		{"wrong version", func() []uint8 {
			s := minimalStory(0x80, 0x40)
			s[0] = 5
			return s
		}()},
		{"static base inside header", minimalStory(0x80, 0x20)},
		{"static base past end of file", minimalStory(0x80, 0x100)},
		{"declared length past end of file", func() []uint8 {
			s := minimalStory(0x80, 0x40)
			binary.BigEndian.PutUint16(s[0x1a:0x1c], 0x100)
			return s
		}()},
		{"checksum mismatch", func() []uint8 {
			s := minimalStory(0x80, 0x40)
			sealStory(s)
			s[0x60] ^= 0xff
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := zcore.LoadCore(tt.story); !errors.Is(err, zcore.ErrStoryFormat) {
				t.Errorf("expected story format error, got %v", err)
			}
		})
	}
}

func TestLoadCoreParsesHeader(t *testing.T) {
	story := minimalStory(0x100, 0x80)
	story[0x01] = 0b0000_0010 // time based status bar
	binary.BigEndian.PutUint16(story[0x02:0x04], 88)
	binary.BigEndian.PutUint16(story[0x04:0x06], 0x90)
	binary.BigEndian.PutUint16(story[0x06:0x08], 0x91)
	binary.BigEndian.PutUint16(story[0x08:0x0a], 0x60)
	binary.BigEndian.PutUint16(story[0x0a:0x0c], 0x42)
	binary.BigEndian.PutUint16(story[0x0c:0x0e], 0x50)
	copy(story[0x12:0x18], "840726")
	binary.BigEndian.PutUint16(story[0x18:0x1a], 0x44)
	sealStory(story)

	core, err := zcore.LoadCore(story)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if core.Version != 3 {
		t.Errorf("version = %d", core.Version)
	}
	if !core.StatusBarTimeBased {
		t.Error("expected time based status bar")
	}
	if core.ReleaseNumber != 88 {
		t.Errorf("release = %d", core.ReleaseNumber)
	}
	if core.HighMemoryBase != 0x90 || core.FirstInstruction != 0x91 {
		t.Errorf("high memory base = 0x%x, first instruction = 0x%x", core.HighMemoryBase, core.FirstInstruction)
	}
	if core.DictionaryBase != 0x60 || core.ObjectTableBase != 0x42 || core.GlobalVariableBase != 0x50 {
		t.Errorf("table bases = 0x%x 0x%x 0x%x", core.DictionaryBase, core.ObjectTableBase, core.GlobalVariableBase)
	}
	if core.StaticMemoryBase != 0x80 {
		t.Errorf("static base = 0x%x", core.StaticMemoryBase)
	}
	if string(core.SerialCode) != "840726" {
		t.Errorf("serial = %q", core.SerialCode)
	}
	if core.AbbreviationTableBase != 0x44 {
		t.Errorf("abbreviations = 0x%x", core.AbbreviationTableBase)
	}
	if core.FileLength() != 0x100 {
		t.Errorf("file length = 0x%x", core.FileLength())
	}
	if core.ComputeChecksum() != core.FileChecksum {
		t.Errorf("checksum 0x%x != header 0x%x", core.ComputeChecksum(), core.FileChecksum)
	}
}

func TestMemoryBoundsAndRegions(t *testing.T) {
	story := minimalStory(0x80, 0x50)
	core, err := zcore.LoadCore(story)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if err := core.WriteZByte(0x4f, 0xab); err != nil {
		t.Errorf("dynamic byte write failed: %v", err)
	}
	if b, err := core.ReadZByte(0x4f); err != nil || b != 0xab {
		t.Errorf("read back got %#x, %v", b, err)
	}
	if err := core.WriteHalfWord(0x4e, 0x1234); err != nil {
		t.Errorf("dynamic word write failed: %v", err)
	}
	if w, err := core.ReadHalfWord(0x4e); err != nil || w != 0x1234 {
		t.Errorf("read back got %#x, %v", w, err)
	}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"byte write into static", func() error { return core.WriteZByte(0x50, 1) }, zcore.ErrReadOnlyViolation},
		{"word write straddling static base", func() error { return core.WriteHalfWord(0x4f, 1) }, zcore.ErrReadOnlyViolation},
		{"byte write past end", func() error { return core.WriteZByte(0x80, 1) }, zcore.ErrAddressOutOfBounds},
		{"byte read past end", func() error { _, err := core.ReadZByte(0x80); return err }, zcore.ErrAddressOutOfBounds},
		{"word read at last byte", func() error { _, err := core.ReadHalfWord(0x7f); return err }, zcore.ErrAddressOutOfBounds},
		{"slice read past end", func() error { _, err := core.ReadSlice(0x10, 0x90); return err }, zcore.ErrAddressOutOfBounds},
		{"inverted slice", func() error { _, err := core.ReadSlice(0x20, 0x10); return err }, zcore.ErrAddressOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPackedAddresses(t *testing.T) {
	story := minimalStory(0x80, 0x40)
	core, err := zcore.LoadCore(story)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if got := core.RoutineAddress(0x1234); got != 0x2468 {
		t.Errorf("routine address = 0x%x", got)
	}
	if got := core.StringAddress(0xffff); got != 0x1fffe {
		t.Errorf("string address = 0x%x", got)
	}
}
