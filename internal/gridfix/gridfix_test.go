package gridfix

import (
	"context"
	"testing"

	"github.com/rrobinett/wsprdaemon-server/pkg/maidenhead"
)

type fakeConn struct {
	rows        []Row
	pageSize    uint64
	applied     []Update
	applyErr    error
	fetchCalls  int
}

func (f *fakeConn) Count(ctx context.Context, database, table string) (uint64, error) {
	return uint64(len(f.rows)), nil
}

func (f *fakeConn) FetchPage(ctx context.Context, database, table string, limit, offset uint64) ([]Row, error) {
	f.fetchCalls++
	if offset >= uint64(len(f.rows)) {
		return nil, nil
	}
	end := offset + limit
	if end > uint64(len(f.rows)) {
		end = uint64(len(f.rows))
	}
	return f.rows[offset:end], nil
}

func (f *fakeConn) ApplyUpdates(ctx context.Context, database, table string, updates []Update) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, updates...)
	return nil
}

func TestFix_UpdatesDriftedRowsOnly(t *testing.T) {
	rxLat, rxLon := maidenhead.ToLatLon("EN16ov")
	txLat, txLon := maidenhead.ToLatLon("FN42ll")

	conn := &fakeConn{
		rows: []Row{
			{ID: 1, RxLoc: "EN16ov", RxLat: rxLat, RxLon: rxLon, TxLoc: "FN42ll", TxLat: txLat, TxLon: txLon},
			{ID: 2, RxLoc: "EN16ov", RxLat: 0, RxLon: 0, TxLoc: "", TxLat: 0, TxLon: 0},
		},
	}

	res, err := Fix(context.Background(), conn, Options{Database: "wd", Table: "spots", PageSize: 10})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", res.Processed)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 updated (only row 2 has drifted coordinates), got %d", res.Updated)
	}
	if len(conn.applied) != 1 || conn.applied[0].ID != 2 {
		t.Errorf("expected row 2 to be the only applied update, got %+v", conn.applied)
	}
}

func TestFix_DryRunCountsWithoutApplying(t *testing.T) {
	conn := &fakeConn{
		rows: []Row{
			{ID: 1, RxLoc: "EN16ov", RxLat: 0, RxLon: 0},
		},
	}

	res, err := Fix(context.Background(), conn, Options{Database: "wd", Table: "spots", DryRun: true})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("expected dry-run to still count the row as updatable, got %d", res.Updated)
	}
	if len(conn.applied) != 0 {
		t.Error("expected dry-run to never call ApplyUpdates")
	}
}

func TestFix_PagesAcrossMultipleFetches(t *testing.T) {
	var rows []Row
	for i := uint64(1); i <= 25; i++ {
		rows = append(rows, Row{ID: i, RxLoc: "EN16ov", RxLat: 0, RxLon: 0})
	}
	conn := &fakeConn{rows: rows}

	res, err := Fix(context.Background(), conn, Options{Database: "wd", Table: "spots", PageSize: 10})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Processed != 25 {
		t.Errorf("expected 25 rows processed, got %d", res.Processed)
	}
	if conn.fetchCalls != 3 {
		t.Errorf("expected 3 page fetches for 25 rows at page size 10, got %d", conn.fetchCalls)
	}
}

func TestFix_RespectsLimit(t *testing.T) {
	var rows []Row
	for i := uint64(1); i <= 25; i++ {
		rows = append(rows, Row{ID: i, RxLoc: "EN16ov", RxLat: 0, RxLon: 0})
	}
	conn := &fakeConn{rows: rows}

	res, err := Fix(context.Background(), conn, Options{Database: "wd", Table: "spots", PageSize: 10, Limit: 5})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Processed != 5 {
		t.Errorf("expected --limit 5 to cap processed rows, got %d", res.Processed)
	}
}

func TestFix_ApplyErrorCountsAsErrorNotUpdated(t *testing.T) {
	conn := &fakeConn{
		rows:     []Row{{ID: 1, RxLoc: "EN16ov", RxLat: 0, RxLon: 0}},
		applyErr: errApply,
	}

	res, err := Fix(context.Background(), conn, Options{Database: "wd", Table: "spots"})
	if err != nil {
		t.Fatalf("Fix() error = %v", err)
	}
	if res.Errors != 1 {
		t.Errorf("expected 1 error, got %d", res.Errors)
	}
	if res.Updated != 0 {
		t.Errorf("expected 0 updated when ApplyUpdates fails, got %d", res.Updated)
	}
}

type fakeApplyErr string

func (e fakeApplyErr) Error() string { return string(e) }

const errApply = fakeApplyErr("gridfix: fake apply failure")
