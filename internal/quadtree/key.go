package quadtree

import (
	"fmt"
	"image"
)

const (
	keyCoordBits = 28
	keyCoordMask = 1<<keyCoordBits - 1
)

// Key packs a pyramid level and a level-0 tile origin into one ordered
// value: level in the top byte, then x, then y. Origins must be below 2^28.
type Key uint64

// MakeKey packs level and origin.
func MakeKey(level int, origin image.Point) Key {
	return Key(uint64(level)<<(2*keyCoordBits) |
		uint64(origin.X&keyCoordMask)<<keyCoordBits |
		uint64(origin.Y&keyCoordMask))
}

// Level returns the pyramid level.
func (k Key) Level() int {
	return int(k >> (2 * keyCoordBits))
}

// Origin returns the level-0 tile origin.
func (k Key) Origin() image.Point {
	return image.Pt(int(k>>keyCoordBits)&keyCoordMask, int(k)&keyCoordMask)
}

func (k Key) String() string {
	o := k.Origin()
	return fmt.Sprintf("L%d(%d,%d)", k.Level(), o.X, o.Y)
}
