package landcover

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	_ "modernc.org/sqlite"
)

// PackExt is the file extension of a land-cover tile pack.
const PackExt = ".tiles.db"

// IsPackName reports whether name looks like a tile pack.
func IsPackName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), PackExt)
}

// A tile pack is a SQLite file holding one raster: georeferencing in meta and
// one uint8 class code per cell, stored a row at a time.
const packSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS cells (
	row  INTEGER PRIMARY KEY,
	data BLOB NOT NULL
);
`

// Pack is a Raster backed by a tile pack file.
type Pack struct {
	db     *sql.DB
	name   string
	crs    CRS
	bounds *geom.Bounds
	width  int
	height int
}

// OpenPack opens a tile pack read-only and loads its georeferencing.
func OpenPack(path string) (*Pack, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "landcover: stat pack %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: open pack %s", path)
	}
	// query_only is per connection, so keep a single one.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "landcover: open pack %s", path)
	}

	p := &Pack{db: db, name: filepath.Base(path)}
	if err := p.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pack) loadMeta() error {
	rows, err := p.db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return eris.Wrapf(err, "landcover: read meta of %s", p.name)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return eris.Wrapf(err, "landcover: scan meta of %s", p.name)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "landcover: read meta of %s", p.name)
	}

	num := func(key string) (float64, error) {
		v, ok := meta[key]
		if !ok {
			return 0, eris.Errorf("landcover: pack %s missing meta %q", p.name, key)
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "landcover: pack %s meta %q", p.name, key)
		}
		return f, nil
	}

	if p.crs, err = ParseCRS(meta["crs"]); err != nil {
		return eris.Wrapf(err, "landcover: pack %s", p.name)
	}
	var vals [6]float64
	for i, key := range []string{"width", "height", "min_x", "min_y", "max_x", "max_y"} {
		if vals[i], err = num(key); err != nil {
			return err
		}
	}
	p.width, p.height = int(vals[0]), int(vals[1])
	if p.width <= 0 || p.height <= 0 {
		return eris.Errorf("landcover: pack %s has size %dx%d", p.name, p.width, p.height)
	}
	p.bounds, err = newBounds(vals[2], vals[3], vals[4], vals[5])
	return err
}

func (p *Pack) Name() string              { return p.name }
func (p *Pack) CRS() CRS                  { return p.crs }
func (p *Pack) Bounds() *geom.Bounds      { return p.bounds }
func (p *Pack) Size() (width, height int) { return p.width, p.height }
func (p *Pack) Close() error              { return p.db.Close() }

// ReadWindow implements Raster. Only the rows overlapping the window are read.
func (p *Pack) ReadWindow(ctx context.Context, row, col, rows, cols int) ([]int, error) {
	out := make([]int, rows*cols)
	rs, err := p.db.QueryContext(ctx,
		`SELECT row, data FROM cells WHERE row >= ? AND row < ? ORDER BY row`,
		row, row+rows,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "landcover: read window of %s", p.name)
	}
	defer rs.Close()

	for rs.Next() {
		var r int
		var data []byte
		if err := rs.Scan(&r, &data); err != nil {
			return nil, eris.Wrapf(err, "landcover: scan row of %s", p.name)
		}
		if len(data) != p.width {
			return nil, eris.Errorf("landcover: pack %s row %d has %d cells, want %d", p.name, r, len(data), p.width)
		}
		i := r - row
		for j := range cols {
			c := col + j
			if c < 0 || c >= p.width {
				continue
			}
			out[i*cols+j] = int(data[c])
		}
	}
	return out, eris.Wrapf(rs.Err(), "landcover: read window of %s", p.name)
}

// WritePack writes src into a new tile pack at path, replacing any file there.
func WritePack(ctx context.Context, path string, src Raster) error {
	width, height := src.Size()
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	db, err := sql.Open("sqlite", tmp)
	if err != nil {
		return eris.Wrapf(err, "landcover: create pack %s", path)
	}
	defer os.Remove(tmp) //nolint:errcheck

	if err := writePack(ctx, db, src, width, height); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return eris.Wrapf(err, "landcover: close pack %s", path)
	}
	return eris.Wrapf(os.Rename(tmp, path), "landcover: install pack %s", path)
}

func writePack(ctx context.Context, db *sql.DB, src Raster, width, height int) error {
	if _, err := db.ExecContext(ctx, packSchema); err != nil {
		return eris.Wrap(err, "landcover: create pack schema")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "landcover: begin pack")
	}
	defer tx.Rollback() //nolint:errcheck

	b := src.Bounds()
	meta := map[string]string{
		"crs":    src.CRS().String(),
		"width":  strconv.Itoa(width),
		"height": strconv.Itoa(height),
		"min_x":  strconv.FormatFloat(b.Min(0), 'g', -1, 64),
		"min_y":  strconv.FormatFloat(b.Min(1), 'g', -1, 64),
		"max_x":  strconv.FormatFloat(b.Max(0), 'g', -1, 64),
		"max_y":  strconv.FormatFloat(b.Max(1), 'g', -1, 64),
		"source": src.Name(),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return eris.Wrapf(err, "landcover: write meta %s", k)
		}
	}

	for r := range height {
		vals, err := src.ReadWindow(ctx, r, 0, 1, width)
		if err != nil {
			return eris.Wrapf(err, "landcover: read source row %d", r)
		}
		data := make([]byte, width)
		for c, v := range vals {
			if v < 0 || v > 255 {
				return eris.Errorf("landcover: class %d at row %d col %d does not fit a byte", v, r, c)
			}
			data[c] = byte(v)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO cells (row, data) VALUES (?, ?)`, r, data); err != nil {
			return eris.Wrapf(err, "landcover: write row %d", r)
		}
	}
	return eris.Wrap(tx.Commit(), "landcover: commit pack")
}

// Describe is a one-line summary of a raster's georeferencing.
func Describe(r Raster) string {
	b := r.Bounds()
	w, h := r.Size()
	return fmt.Sprintf("%s %dx%d [%g %g %g %g]", r.CRS(), w, h, b.Min(0), b.Min(1), b.Max(0), b.Max(1))
}
