// Package spatial provides a cache-efficient uniform grid for broad-phase
// neighbor queries over the live entity set.
//
// The grid is rebuilt once per tick from current positions; queries return
// candidates that the caller narrows with a precise distance check.
package spatial

import "math"

// Grid provides O(1) average spatial queries via fixed-size cells.
// Cells are stored in row-major order (cells[row*cols+col]).
type Grid struct {
	cellSize    float64
	invCellSize float64
	cols, rows  int
	cells       [][]string // entity ids per cell
	scratch     []string   // reusable query buffer
}

// NewGrid creates a grid covering the given world bounds. cellSize should be
// close to the largest common query radius.
func NewGrid(worldWidth, worldHeight, cellSize float64) *Grid {
	cols := int(math.Ceil(worldWidth / cellSize))
	rows := int(math.Ceil(worldHeight / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]string, cols*rows)
	for i := range cells {
		cells[i] = make([]string, 0, 4)
	}

	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]string, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Insert adds an entity id at position (x, y). Positions outside the world
// bounds clamp to the edge cells.
func (g *Grid) Insert(id string, x, y float64) {
	idx := g.cellIndex(x, y)
	g.cells[idx] = append(g.cells[idx], id)
}

func (g *Grid) cellIndex(x, y float64) int {
	col := int(x * g.invCellSize)
	row := int(y * g.invCellSize)
	if col < 0 {
		col = 0
	}
	if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	}
	if row >= g.rows {
		row = g.rows - 1
	}
	return row*g.cols + col
}

// QueryRadius returns all entity ids potentially within radius of (cx, cy).
// The returned slice is reused on subsequent calls; copy it to persist.
// Candidates may lie outside the radius; callers do the narrow-phase check.
func (g *Grid) QueryRadius(cx, cy, radius float64) []string {
	g.scratch = g.scratch[:0]

	minCol := int((cx - radius) * g.invCellSize)
	maxCol := int((cx + radius) * g.invCellSize)
	minRow := int((cy - radius) * g.invCellSize)
	maxRow := int((cy + radius) * g.invCellSize)

	if minCol < 0 {
		minCol = 0
	}
	if maxCol >= g.cols {
		maxCol = g.cols - 1
	}
	if minRow < 0 {
		minRow = 0
	}
	if maxRow >= g.rows {
		maxRow = g.rows - 1
	}

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Dimensions returns the grid dimensions.
func (g *Grid) Dimensions() (cols, rows int, cellSize float64) {
	return g.cols, g.rows, g.cellSize
}
