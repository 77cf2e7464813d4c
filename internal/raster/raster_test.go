package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"testing"
)

func TestLevelCount(t *testing.T) {
	tests := []struct {
		w, h int
		want int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{2, 1, 1},
		{2, 2, 2},
		{6, 6, 3},
		{1024, 1024, 7},
		{100000, 100000, 7},
		{1024, 3, 2},
	}
	for _, tt := range tests {
		if got := LevelCount(tt.w, tt.h); got != tt.want {
			t.Errorf("LevelCount(%d, %d) = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNewPyramidSizes(t *testing.T) {
	p := NewPyramid(1000, 600, FormatRGBA8)
	wantW := []int{1000, 500, 250, 125, 62, 31, 15}
	wantH := []int{600, 300, 150, 75, 37, 18, 9}
	if len(p.Levels) != len(wantW) {
		t.Fatalf("levels: got %d, want %d", len(p.Levels), len(wantW))
	}
	for i, l := range p.Levels {
		if l.Width != wantW[i] || l.Height != wantH[i] {
			t.Errorf("level %d: got %dx%d, want %dx%d", i, l.Width, l.Height, wantW[i], wantH[i])
		}
		if l.Stride != l.Width*4 || len(l.Pix) != l.Stride*l.Height {
			t.Errorf("level %d: bad stride %d or buffer %d", i, l.Stride, len(l.Pix))
		}
	}
}

func TestFillPropagatesToCoarserLevels(t *testing.T) {
	s := NewStore(image.Pt(1024, 1024), Height8)

	written, damage := s.Fill(image.Rect(0, 0, 512, 512), 1, 0, 0, 10)
	if written != image.Rect(0, 0, 512, 512) {
		t.Fatalf("written rect: got %v", written)
	}
	if len(damage.Color) != s.Levels() || len(damage.Height) != s.Levels() {
		t.Fatalf("damage should cover all %d levels, got %d/%d", s.Levels(), len(damage.Color), len(damage.Height))
	}
	if damage.Color[1] != image.Rect(0, 0, 256, 256) {
		t.Errorf("level 1 damage: got %v, want (0,0)-(256,256)", damage.Color[1])
	}

	for _, p := range []image.Point{{0, 0}, {128, 77}, {255, 255}} {
		if got := s.ColorAt(1, p.X, p.Y); got != [4]uint8{255, 0, 0, 255} {
			t.Errorf("level 1 color at %v: got %v, want red", p, got)
		}
		if got := s.HeightAt(1, p.X, p.Y); got != 10 {
			t.Errorf("level 1 height at %v: got %d, want 10", p, got)
		}
	}
	// Outside the filled quarter nothing changed.
	if got := s.ColorAt(1, 256, 256); got != [4]uint8{} {
		t.Errorf("level 1 color at (256,256): got %v, want zero", got)
	}
	if got := s.HeightAt(6, 3, 3); got != 10 {
		t.Errorf("level 6 height at (3,3): got %d, want 10", got)
	}
}

func TestFillIsIdempotent(t *testing.T) {
	once := NewStore(image.Pt(300, 200), Height16)
	twice := NewStore(image.Pt(300, 200), Height16)

	r := image.Rect(17, 33, 250, 180)
	once.Fill(r, 0.2, 0.4, 0.6, 1234)
	twice.Fill(r, 0.2, 0.4, 0.6, 1234)
	twice.Fill(r, 0.2, 0.4, 0.6, 1234)

	for i := 0; i < once.Levels(); i++ {
		if !bytes.Equal(once.Color().Level(i).Pix, twice.Color().Level(i).Pix) {
			t.Errorf("color level %d differs after repeated fill", i)
		}
		if !bytes.Equal(once.Height().Level(i).Pix, twice.Height().Level(i).Pix) {
			t.Errorf("height level %d differs after repeated fill", i)
		}
	}
}

func TestFillClipsToBounds(t *testing.T) {
	s := NewStore(image.Pt(64, 64), Height8)

	written, _ := s.Fill(image.Rect(-10, 50, 20, 100), 1, 1, 1, 1)
	if written != image.Rect(0, 50, 20, 64) {
		t.Errorf("written: got %v, want (0,50)-(20,64)", written)
	}

	written, damage := s.Fill(image.Rect(100, 100, 200, 200), 1, 1, 1, 1)
	if !written.Empty() || !damage.Empty() {
		t.Errorf("fill outside the image should write nothing, got %v %v", written, damage)
	}
}

func TestPropagationStopsAtOddLevel(t *testing.T) {
	s := NewStore(image.Pt(6, 6), Height8)
	if s.Levels() != 3 {
		t.Fatalf("levels: got %d, want 3", s.Levels())
	}

	// Level 1 is 3 wide, so the widened source [2,4) overruns it.
	_, damage := s.Fill(image.Rect(4, 4, 6, 6), 1, 1, 1, 200)
	want := []image.Rectangle{image.Rect(4, 4, 6, 6), image.Rect(2, 2, 3, 3)}
	if len(damage.Height) != len(want) {
		t.Fatalf("damage levels: got %v, want %v", damage.Height, want)
	}
	for i := range want {
		if damage.Height[i] != want[i] {
			t.Errorf("level %d: got %v, want %v", i, damage.Height[i], want[i])
		}
	}
	if got := s.HeightAt(2, 0, 0); got != 0 {
		t.Errorf("level 2 should be untouched, got %d", got)
	}
}

func TestPropagationWidensToEvenCoordinates(t *testing.T) {
	s := NewStore(image.Pt(16, 16), Height8)

	_, damage := s.Fill(image.Rect(3, 5, 4, 6), 1, 1, 1, 100)
	if damage.Height[1] != image.Rect(1, 2, 2, 3) {
		t.Errorf("level 1: got %v, want (1,2)-(2,3)", damage.Height[1])
	}
	// One of four source pixels is 100: average rounds to 25.
	if got := s.HeightAt(1, 1, 2); got != 25 {
		t.Errorf("level 1 height: got %d, want 25", got)
	}
}

func TestUpdateFullSubrectMatchesZeroSubrect(t *testing.T) {
	src := &Source{Width: 40, Height: 30, Stride: 40 * 4, Format: FormatRGBA8, Pix: make([]byte, 40*30*4)}
	for i := range src.Pix {
		src.Pix[i] = byte(i * 7)
	}
	hsrc := &Source{Width: 40, Height: 30, Stride: 40, Format: FormatGray8, Pix: make([]byte, 40*30)}
	for i := range hsrc.Pix {
		hsrc.Pix[i] = byte(i)
	}
	load := func(s *Source) Loader { return func() (*Source, error) { return s, nil } }

	a := NewStore(image.Pt(128, 128), Height8)
	b := NewStore(image.Pt(128, 128), Height8)
	ra, _, err := a.Update(image.Pt(10, 20), image.Rectangle{}, load(src), load(hsrc))
	if err != nil {
		t.Fatalf("update a: %v", err)
	}
	rb, _, err := b.Update(image.Pt(10, 20), image.Rect(0, 0, 40, 30), load(src), load(hsrc))
	if err != nil {
		t.Fatalf("update b: %v", err)
	}
	if ra != rb || ra != image.Rect(10, 20, 50, 50) {
		t.Errorf("written rects: %v vs %v", ra, rb)
	}
	for i := 0; i < a.Levels(); i++ {
		if !bytes.Equal(a.Color().Level(i).Pix, b.Color().Level(i).Pix) {
			t.Errorf("color level %d differs", i)
		}
		if !bytes.Equal(a.Height().Level(i).Pix, b.Height().Level(i).Pix) {
			t.Errorf("height level %d differs", i)
		}
	}
}

func TestUpdateSubrectAndClipping(t *testing.T) {
	src := &Source{Width: 4, Height: 4, Stride: 4, Format: FormatGray8, Pix: []byte{
		0, 1, 2, 3,
		4, 5, 6, 7,
		8, 9, 10, 11,
		12, 13, 14, 15,
	}}
	s := NewStore(image.Pt(8, 8), Height8)

	written, _, err := s.Update(image.Pt(6, 6), image.Rect(1, 1, 4, 4), nil, func() (*Source, error) { return src, nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if written != image.Rect(6, 6, 8, 8) {
		t.Errorf("written: got %v, want (6,6)-(8,8)", written)
	}
	want := map[image.Point]uint16{{6, 6}: 5, {7, 6}: 6, {6, 7}: 9, {7, 7}: 10}
	for p, v := range want {
		if got := s.HeightAt(0, p.X, p.Y); got != v {
			t.Errorf("height at %v: got %d, want %d", p, got, v)
		}
	}
	// Negative origin crops the source from the left.
	written, _, err = s.Update(image.Pt(-2, 0), image.Rectangle{}, nil, func() (*Source, error) { return src, nil })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if written != image.Rect(0, 0, 2, 4) {
		t.Errorf("written: got %v, want (0,0)-(2,4)", written)
	}
	if got := s.HeightAt(0, 0, 1); got != 6 {
		t.Errorf("height at (0,1): got %d, want 6", got)
	}
}

func TestUpdateConvertsFormats(t *testing.T) {
	rgb := &Source{Width: 1, Height: 1, Stride: 3, Format: FormatRGB8, Pix: []byte{255, 0, 0}}
	gray := &Source{Width: 1, Height: 1, Stride: 1, Format: FormatGray8, Pix: []byte{200}}
	gray16 := &Source{Width: 1, Height: 1, Stride: 2, Format: FormatGray16, Pix: []byte{0x34, 0x12}}

	tests := []struct {
		name       string
		mode       HeightMode
		color      *Source
		height     *Source
		wantColor  [4]uint8
		wantHeight uint16
	}{
		{"rgb color, rgb height to luma", Height8, rgb, rgb, [4]uint8{255, 0, 0, 255}, 76},
		{"gray color replicated", Height8, gray, gray, [4]uint8{200, 200, 200, 255}, 200},
		{"gray8 into 16-bit heights", Height16, gray, gray, [4]uint8{200, 200, 200, 255}, 200 * 257},
		{"gray16 into 8-bit heights keeps high byte", Height8, gray, gray16, [4]uint8{200, 200, 200, 255}, 0x12},
		{"gray16 exact", Height16, gray, gray16, [4]uint8{200, 200, 200, 255}, 0x1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(image.Pt(2, 2), tt.mode)
			_, _, err := s.Update(image.Pt(0, 0), image.Rectangle{},
				func() (*Source, error) { return tt.color, nil },
				func() (*Source, error) { return tt.height, nil })
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if got := s.ColorAt(0, 0, 0); got != tt.wantColor {
				t.Errorf("color: got %v, want %v", got, tt.wantColor)
			}
			if got := s.HeightAt(0, 0, 0); got != tt.wantHeight {
				t.Errorf("height: got %d, want %d", got, tt.wantHeight)
			}
		})
	}
}

func TestUpdateFailedHalfLeavesChannelUnchanged(t *testing.T) {
	s := NewStore(image.Pt(8, 8), Height8)
	s.Fill(s.Bounds(), 0, 0, 0, 42)

	decodeErr := errors.New("bad file")
	color := &Source{Width: 8, Height: 8, Stride: 32, Format: FormatRGBA8, Pix: bytes.Repeat([]byte{9, 8, 7, 255}, 64)}
	written, damage, err := s.Update(image.Pt(0, 0), image.Rectangle{},
		func() (*Source, error) { return color, nil },
		func() (*Source, error) { return nil, decodeErr })

	if !errors.Is(err, decodeErr) {
		t.Fatalf("error: got %v, want %v", err, decodeErr)
	}
	if written != s.Bounds() {
		t.Errorf("written: got %v, want %v", written, s.Bounds())
	}
	if damage.Height != nil {
		t.Errorf("height damage should be empty, got %v", damage.Height)
	}
	if got := s.HeightAt(0, 3, 3); got != 42 {
		t.Errorf("height changed to %d", got)
	}
	if got := s.ColorAt(1, 1, 1); got != [4]uint8{9, 8, 7, 255} {
		t.Errorf("color not applied: %v", got)
	}
}

func TestSourceValidate(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want error
	}{
		{"ok", Source{Width: 2, Height: 2, Stride: 8, Format: FormatRGBA8, Pix: make([]byte, 16)}, nil},
		{"padded stride, short last row allowed", Source{Width: 2, Height: 2, Stride: 10, Format: FormatRGBA8, Pix: make([]byte, 18)}, nil},
		{"short", Source{Width: 2, Height: 2, Stride: 8, Format: FormatRGBA8, Pix: make([]byte, 15)}, ErrShortBuffer},
		{"stride too small", Source{Width: 2, Height: 2, Stride: 4, Format: FormatRGBA8, Pix: make([]byte, 16)}, ErrShortBuffer},
		{"bad format", Source{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 16)}, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadTileReplicatesEdges(t *testing.T) {
	l := NewLevel(3, 2, FormatGray16)
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			binary.LittleEndian.PutUint16(l.At(x, y), uint16(10*y+x))
		}
	}

	// Whole level with a 2 pixel border: 7x6 texels.
	out := l.ReadTile(0, 0, 3, 2, 2)
	if len(out) != 7*6*2 {
		t.Fatalf("size: got %d, want %d", len(out), 7*6*2)
	}
	at := func(x, y int) uint16 { return binary.LittleEndian.Uint16(out[(y*7+x)*2:]) }

	want := [][]uint16{
		{0, 0, 0, 1, 2, 2, 2},
		{0, 0, 0, 1, 2, 2, 2},
		{0, 0, 0, 1, 2, 2, 2},
		{10, 10, 10, 11, 12, 12, 12},
		{10, 10, 10, 11, 12, 12, 12},
		{10, 10, 10, 11, 12, 12, 12},
	}
	for y, row := range want {
		for x, v := range row {
			if got := at(x, y); got != v {
				t.Errorf("texel (%d,%d): got %d, want %d", x, y, got, v)
			}
		}
	}
}

func TestReadTileInteriorUsesNeighbours(t *testing.T) {
	l := NewLevel(4, 1, FormatGray8)
	copy(l.Pix, []byte{1, 2, 3, 4})

	// Tile covering x in [1,3) with a 1 pixel border sees its real neighbours.
	out := l.ReadTile(1, 0, 2, 1, 1)
	if got := out[0:4]; !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("middle row: got %v, want [1 2 3 4]", got)
	}
}

func TestSetModeConvertsHeights(t *testing.T) {
	s := NewStore(image.Pt(8, 8), Height8)
	s.Fill(image.Rect(0, 0, 8, 8), 0, 0, 0, 200)

	d := s.SetMode(Height16)
	if len(d.Height) != s.Levels() || d.Color != nil {
		t.Fatalf("damage: got %d height levels and %d color, want %d and 0", len(d.Height), len(d.Color), s.Levels())
	}
	if d.Height[1] != image.Rect(0, 0, 4, 4) {
		t.Errorf("level 1 damage: got %v", d.Height[1])
	}
	if got := s.Height().Format; got != FormatGray16 {
		t.Errorf("format: got %v, want Gray16", got)
	}
	if got := s.HeightAt(0, 3, 3); got != 200*257 {
		t.Errorf("level 0: got %d, want %d", got, 200*257)
	}
	if got := s.HeightAt(2, 1, 1); got != 200*257 {
		t.Errorf("level 2: got %d, want %d", got, 200*257)
	}

	s.SetMode(Height8)
	if got := s.HeightAt(0, 0, 0); got != 200 {
		t.Errorf("back to 8 bits: got %d, want 200", got)
	}
	if d := s.SetMode(Height8); !d.Empty() {
		t.Error("same mode must not report damage")
	}
}
