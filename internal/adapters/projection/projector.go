// Package projection reprojects coordinates into WGS84 through DuckDB's
// spatial extension, which carries its own PROJ database and accepts
// CRS definitions as WKT, the form found in shapefile .prj members.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/paulmach/orb"

	"github.com/samirrijal/fenceline/internal/core/boundary"
)

// transformBatch bounds the VALUES list of a single query.
const transformBatch = 2000

type Projector struct {
	db *sql.DB
}

var _ boundary.Reprojector = (*Projector)(nil)

// New opens an in-memory DuckDB instance and loads the spatial
// extension. The instance is shared by all transforms and is safe for
// concurrent use through database/sql.
func New(ctx context.Context) (*Projector, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.ExecContext(ctx, "install spatial; load spatial;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("load spatial extension: %w", err)
	}

	return &Projector{db: db}, nil
}

func (p *Projector) Close() error {
	return p.db.Close()
}

// ToWGS84 transforms points from the CRS described by srcWKT into
// EPSG:4326. Input and output share [lng, lat] axis order (always_xy);
// order and length are preserved.
func (p *Projector) ToWGS84(ctx context.Context, srcWKT string, points []orb.Point) ([]orb.Point, error) {
	out := make([]orb.Point, 0, len(points))
	for start := 0; start < len(points); start += transformBatch {
		end := start + transformBatch
		if end > len(points) {
			end = len(points)
		}
		chunk, err := p.transform(ctx, srcWKT, points[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (p *Projector) transform(ctx context.Context, srcWKT string, points []orb.Point) ([]orb.Point, error) {
	var sb strings.Builder
	sb.WriteString("with pts(i, x, y) as (values ")
	for i, pt := range points {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString(", ")
		sb.WriteString(strconv.FormatFloat(pt[0], 'g', -1, 64))
		sb.WriteString(", ")
		sb.WriteString(strconv.FormatFloat(pt[1], 'g', -1, 64))
		sb.WriteString(")")
	}
	sb.WriteString(") select ST_X(shape), ST_Y(shape) from (")
	sb.WriteString("select i, ST_Transform(ST_Point(x, y), ?, 'EPSG:4326', true) as shape from pts")
	sb.WriteString(") order by i")

	rows, err := p.db.QueryContext(ctx, sb.String(), srcWKT)
	if err != nil {
		return nil, fmt.Errorf("transform query: %w", err)
	}
	defer rows.Close()

	out := make([]orb.Point, 0, len(points))
	for rows.Next() {
		var x, y float64
		if err := rows.Scan(&x, &y); err != nil {
			return nil, fmt.Errorf("scan transformed point: %w", err)
		}
		out = append(out, orb.Point{x, y})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(points) {
		return nil, fmt.Errorf("transform returned %d points for %d inputs", len(out), len(points))
	}
	return out, nil
}
