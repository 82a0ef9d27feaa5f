package world

import "math"

// CellSize is the side length of one grid cell in world units.
const CellSize = 10.0

// WindowRadius gives the 5x5 active window around the local player's cell.
const WindowRadius = 2

type Cell struct {
	X int
	Y int
}

func CellOf(x, y float32) Cell {
	return Cell{
		X: int(math.Floor(float64(x) / CellSize)),
		Y: int(math.Floor(float64(y) / CellSize)),
	}
}

// Window is the square block of cells retained around a center cell.
type Window struct {
	Center Cell
	Radius int
}

func WindowAround(c Cell) Window {
	return Window{Center: c, Radius: WindowRadius}
}

func (w Window) Contains(c Cell) bool {
	return c.X >= w.Center.X-w.Radius && c.X <= w.Center.X+w.Radius &&
		c.Y >= w.Center.Y-w.Radius && c.Y <= w.Center.Y+w.Radius
}

// Cells lists the window cells row by row.
func (w Window) Cells() []Cell {
	side := 2*w.Radius + 1
	out := make([]Cell, 0, side*side)
	for dy := -w.Radius; dy <= w.Radius; dy++ {
		for dx := -w.Radius; dx <= w.Radius; dx++ {
			out = append(out, Cell{X: w.Center.X + dx, Y: w.Center.Y + dy})
		}
	}
	return out
}

// neighborhood returns the 3x3 block around c.
func neighborhood(c Cell) []Cell {
	return Window{Center: c, Radius: 1}.Cells()
}

// bucket holds the entities whose position falls in one cell.
type bucket map[Ref]*Entity

type grid struct {
	cells map[Cell]bucket
}

func newGrid() grid {
	return grid{cells: map[Cell]bucket{}}
}

func (g *grid) insert(e *Entity) {
	c := e.Cell()
	b := g.cells[c]
	if b == nil {
		b = bucket{}
		g.cells[c] = b
	}
	b[e.Ref()] = e
}

func (g *grid) delete(c Cell, ref Ref) {
	b := g.cells[c]
	if b == nil {
		return
	}
	delete(b, ref)
	if len(b) == 0 {
		delete(g.cells, c)
	}
}

func (g *grid) reset() {
	g.cells = map[Cell]bucket{}
}
