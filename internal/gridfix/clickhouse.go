package gridfix

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseConn is the production Conn, issuing the exact paged
// SELECT/ALTER TABLE ... UPDATE CASE-statement shape of the reference
// implementation.
type ClickHouseConn struct {
	conn clickhouse.Conn
}

// Dial opens a ClickHouse connection for gridfix's read/update access.
func Dial(host string, port int, user, password, database string) (*ClickHouseConn, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", host, port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gridfix: connect: %w", err)
	}
	return &ClickHouseConn{conn: conn}, nil
}

func (c *ClickHouseConn) Close() error { return c.conn.Close() }

func (c *ClickHouseConn) Count(ctx context.Context, database, table string) (uint64, error) {
	var count uint64
	row := c.conn.QueryRow(ctx, fmt.Sprintf("SELECT count() FROM %s.%s", database, table))
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *ClickHouseConn) FetchPage(ctx context.Context, database, table string, limit, offset uint64) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT id, rx_loc, rx_lat, rx_lon, tx_loc, tx_lat, tx_lon
		FROM %s.%s
		ORDER BY id
		LIMIT %d OFFSET %d`, database, table, limit, offset)

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.RxLoc, &r.RxLat, &r.RxLon, &r.TxLoc, &r.TxLat, &r.TxLon); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyUpdates issues a single ALTER TABLE ... UPDATE with one CASE
// expression per column, matching the reference implementation's bulk
// rewrite so a page's worth of corrections lands in one statement.
func (c *ClickHouseConn) ApplyUpdates(ctx context.Context, database, table string, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}

	var rxLatCases, rxLonCases, txLatCases, txLonCases, ids strings.Builder
	for i, u := range updates {
		if i > 0 {
			ids.WriteByte(',')
		}
		idStr := strconv.FormatUint(u.ID, 10)
		ids.WriteString(idStr)
		fmt.Fprintf(&rxLatCases, "WHEN id = %s THEN %s ", idStr, formatFloat(u.RxLat))
		fmt.Fprintf(&rxLonCases, "WHEN id = %s THEN %s ", idStr, formatFloat(u.RxLon))
		fmt.Fprintf(&txLatCases, "WHEN id = %s THEN %s ", idStr, formatFloat(u.TxLat))
		fmt.Fprintf(&txLonCases, "WHEN id = %s THEN %s ", idStr, formatFloat(u.TxLon))
	}

	stmt := fmt.Sprintf(`
		ALTER TABLE %s.%s
		UPDATE
			rx_lat = CASE %sELSE rx_lat END,
			rx_lon = CASE %sELSE rx_lon END,
			tx_lat = CASE %sELSE tx_lat END,
			tx_lon = CASE %sELSE tx_lon END
		WHERE id IN (%s)`,
		database, table,
		rxLatCases.String(), rxLonCases.String(), txLatCases.String(), txLonCases.String(),
		ids.String())

	return c.conn.Exec(ctx, stmt)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
