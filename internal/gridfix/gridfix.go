// Package gridfix recalculates rx_lat/rx_lon/tx_lat/tx_lon from stored grid
// squares and bulk-updates any row whose stored coordinate has drifted from
// the canonical conversion, paging in id order with LIMIT/OFFSET to bound
// statement size (SPEC_FULL.md §4.7).
package gridfix

import (
	"context"
	"fmt"

	"github.com/rrobinett/wsprdaemon-server/pkg/maidenhead"
)

// DefaultToleranceDeg is the drift threshold below which a row is left
// untouched, matching the reference implementation's fixed 0.001 degree cut.
const DefaultToleranceDeg = 0.001

// DefaultPageSize bounds how many rows are fetched, and how large a single
// CASE-based bulk UPDATE statement gets, per page.
const DefaultPageSize = 5000

// Row is one page's worth of a table's coordinate-bearing columns.
type Row struct {
	ID    uint64
	RxLoc string
	RxLat float64
	RxLon float64
	TxLoc string
	TxLat float64
	TxLon float64
}

// Update is a corrected coordinate set for one row ID.
type Update struct {
	ID    uint64
	RxLat float64
	RxLon float64
	TxLat float64
	TxLon float64
}

// Conn abstracts the ClickHouse operations gridfix needs, so the corrector
// is testable without a live server.
type Conn interface {
	Count(ctx context.Context, database, table string) (uint64, error)
	FetchPage(ctx context.Context, database, table string, limit, offset uint64) ([]Row, error)
	ApplyUpdates(ctx context.Context, database, table string, updates []Update) error
}

// Options configures one corrector pass over a single table.
type Options struct {
	Database     string
	Table        string
	PageSize     uint64
	ToleranceDeg float64
	Limit        uint64 // 0 = no limit
	DryRun       bool
}

// Result summarizes one Fix call.
type Result struct {
	Processed uint64
	Updated   uint64
	Errors    uint64
}

// Fix pages through Database.Table, recomputes rx/tx coordinates from their
// grid columns, and bulk-updates any row whose drift exceeds ToleranceDeg.
func Fix(ctx context.Context, conn Conn, opts Options) (Result, error) {
	var res Result

	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	tolerance := opts.ToleranceDeg
	if tolerance == 0 {
		tolerance = DefaultToleranceDeg
	}

	total, err := conn.Count(ctx, opts.Database, opts.Table)
	if err != nil {
		return res, fmt.Errorf("gridfix: count %s.%s: %w", opts.Database, opts.Table, err)
	}
	if opts.Limit > 0 && opts.Limit < total {
		total = opts.Limit
	}

	var offset uint64
	for offset < total {
		remaining := total - offset
		limit := pageSize
		if remaining < limit {
			limit = remaining
		}

		rows, err := conn.FetchPage(ctx, opts.Database, opts.Table, limit, offset)
		if err != nil {
			return res, fmt.Errorf("gridfix: fetch page at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break
		}

		var updates []Update
		for _, r := range rows {
			rxLat, rxLon := maidenhead.ToLatLon(r.RxLoc)
			txLat, txLon := maidenhead.ToLatLon(r.TxLoc)

			if drifted(rxLat, r.RxLat, tolerance) || drifted(rxLon, r.RxLon, tolerance) ||
				drifted(txLat, r.TxLat, tolerance) || drifted(txLon, r.TxLon, tolerance) {
				updates = append(updates, Update{ID: r.ID, RxLat: rxLat, RxLon: rxLon, TxLat: txLat, TxLon: txLon})
			}
		}

		if len(updates) > 0 && !opts.DryRun {
			if err := conn.ApplyUpdates(ctx, opts.Database, opts.Table, updates); err != nil {
				res.Errors += uint64(len(updates))
			} else {
				res.Updated += uint64(len(updates))
			}
		} else if len(updates) > 0 {
			res.Updated += uint64(len(updates))
		}

		res.Processed += uint64(len(rows))
		offset += uint64(len(rows))
	}

	return res, nil
}

func drifted(newVal, oldVal, tolerance float64) bool {
	d := newVal - oldVal
	if d < 0 {
		d = -d
	}
	return d > tolerance
}
