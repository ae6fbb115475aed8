package landcover

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
)

// uniformGrid builds a 10x10 WGS84 grid over lon 78..79, lat 30..31 filled with code.
func uniformGrid(t *testing.T, name string, code int) *Grid {
	t.Helper()
	cells := make([]int, 100)
	for i := range cells {
		cells[i] = code
	}
	g, err := NewGrid(name, CRSWGS84, 78, 30, 79, 31, 10, 10, cells)
	require.NoError(t, err)
	return g
}

// setCells overwrites the 3x3 block centred on (row, col).
func setCells(g *Grid, row, col int, block []int) {
	for i := range 3 {
		for j := range 3 {
			g.cells[(row-1+i)*g.width+(col-1+j)] = block[i*3+j]
		}
	}
}

type gridSource struct {
	name string
	grid Raster
	err  error
}

func (s gridSource) Name() string { return s.name }

func (s gridSource) Open(context.Context) (Raster, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.grid, nil
}

var errCorrupt = eris.New("corrupt tile")
