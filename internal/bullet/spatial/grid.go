// Package spatial provides the uniform grid used for broad-phase target
// collision.
//
// Cells hold slot indices (not pointers) in preallocated slices so a full
// rebuild every tick does not allocate once the grid has warmed up.
package spatial

import (
	"math"
)

// Grid buckets points into fixed-size square cells over a rectangle that may
// straddle the origin (playfield coordinates are centered on 0,0).
//
// Optimal cell size is the largest query radius plus the largest bullet radius.
//
// Memory layout: cells are stored in row-major order (cells[row*cols+col])
type Grid struct {
	minX, minY  float64
	cellSize    float64
	invCellSize float64 // 1/cellSize for faster division
	cols, rows  int
	cells       [][]uint32
	scratch     []uint32 // reusable buffer for query results
	count       int
}

// MaxCells bounds the cell count. Finer cell sizes are coarsened to fit.
const MaxCells = 1 << 14

// NewGrid creates a grid covering [minX, maxX] x [minY, maxY].
// Points outside the rectangle are clamped into the border cells.
// maxEntries is used to preallocate cell capacity.
func NewGrid(minX, minY, maxX, maxY, cellSize float64, maxEntries int) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	w, h := math.Max(maxX-minX, 0), math.Max(maxY-minY, 0)
	for math.Ceil(w/cellSize)*math.Ceil(h/cellSize) > MaxCells {
		cellSize *= 2
	}
	cols := int(math.Ceil(w / cellSize))
	rows := int(math.Ceil(h / cellSize))

	// Ensure at least 1x1 grid
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	cells := make([][]uint32, cols*rows)
	avgPerCell := maxEntries / len(cells)
	if avgPerCell < 4 {
		avgPerCell = 4
	}
	for i := range cells {
		cells[i] = make([]uint32, 0, avgPerCell)
	}

	return &Grid{
		minX:        minX,
		minY:        minY,
		cellSize:    cellSize,
		invCellSize: 1.0 / cellSize,
		cols:        cols,
		rows:        rows,
		cells:       cells,
		scratch:     make([]uint32, 0, 64),
	}
}

// Clear resets all cells without deallocating underlying memory.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	g.count = 0
}

// Insert adds id at (x, y).
func (g *Grid) Insert(id uint32, x, y float64) {
	col, row := g.cell(x, y)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], id)
	g.count++
}

// Len is the number of ids inserted since the last Clear.
func (g *Grid) Len() int {
	return g.count
}

func (g *Grid) cell(x, y float64) (col, row int) {
	return g.clampCol(g.colOf(x)), g.clampRow(g.rowOf(y))
}

func (g *Grid) colOf(x float64) int {
	return int(math.Floor((x - g.minX) * g.invCellSize))
}

func (g *Grid) rowOf(y float64) int {
	return int(math.Floor((y - g.minY) * g.invCellSize))
}

func (g *Grid) clampCol(c int) int {
	if c < 0 {
		return 0
	}
	if c >= g.cols {
		return g.cols - 1
	}
	return c
}

func (g *Grid) clampRow(r int) int {
	if r < 0 {
		return 0
	}
	if r >= g.rows {
		return g.rows - 1
	}
	return r
}

// QueryRadius returns all ids potentially within radius of (cx, cy).
//
// IMPORTANT: The returned slice is reused on subsequent calls.
// Candidates may lie outside the radius; the caller does the narrow phase.
func (g *Grid) QueryRadius(cx, cy, radius float64) []uint32 {
	g.scratch = g.scratch[:0]

	minCol := g.clampCol(g.colOf(cx - radius))
	maxCol := g.clampCol(g.colOf(cx + radius))
	minRow := g.clampRow(g.rowOf(cy - radius))
	maxRow := g.clampRow(g.rowOf(cy + radius))

	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			g.scratch = append(g.scratch, g.cells[row*g.cols+col]...)
		}
	}
	return g.scratch
}

// Stats returns grid occupancy for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var maxInCell, nonEmpty int
	for _, cell := range g.cells {
		n := len(cell)
		if n > maxInCell {
			maxInCell = n
		}
		if n > 0 {
			nonEmpty++
		}
	}

	avg := 0.0
	if nonEmpty > 0 {
		avg = float64(g.count) / float64(nonEmpty)
	}

	return GridStats{
		Cols:           g.cols,
		Rows:           g.rows,
		CellSize:       g.cellSize,
		TotalCells:     len(g.cells),
		NonEmptyCells:  nonEmpty,
		TotalEntries:   g.count,
		MaxInCell:      maxInCell,
		AvgPerNonEmpty: avg,
	}
}

// GridStats contains grid occupancy as of the last rebuild.
type GridStats struct {
	Cols           int     `json:"cols"`
	Rows           int     `json:"rows"`
	CellSize       float64 `json:"cellSize"`
	TotalCells     int     `json:"totalCells"`
	NonEmptyCells  int     `json:"nonEmptyCells"`
	TotalEntries   int     `json:"totalEntries"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerNonEmpty float64 `json:"avgPerNonEmpty"`
}
