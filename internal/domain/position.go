package domain

import "fmt"

// PositionMode selects where new blocks are placed.
type PositionMode string

const (
	PositionEnd    PositionMode = "end"
	PositionIndex  PositionMode = "index"
	PositionBefore PositionMode = "before"
	PositionAfter  PositionMode = "after"
)

// Position describes an insertion point in a block sequence. The zero value
// appends at the end.
type Position struct {
	Mode  PositionMode `json:"mode,omitempty"`
	Index int          `json:"index,omitempty"`
	Ref   string       `json:"ref,omitempty"`
}

// AtEnd appends.
func AtEnd() Position { return Position{Mode: PositionEnd} }

// AtIndex inserts at index n.
func AtIndex(n int) Position { return Position{Mode: PositionIndex, Index: n} }

// Before inserts before the block with the given uuid.
func Before(ref string) Position { return Position{Mode: PositionBefore, Ref: ref} }

// After inserts after the block with the given uuid.
func After(ref string) Position { return Position{Mode: PositionAfter, Ref: ref} }

// Validate checks that relative positions name a reference block.
func (p Position) Validate() error {
	if (p.Mode == PositionBefore || p.Mode == PositionAfter) && p.Ref == "" {
		return fmt.Errorf("position %q requires a reference block uuid", p.Mode)
	}
	return nil
}
