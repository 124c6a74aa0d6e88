// Package chstore wraps the ClickHouse analytic store that spot and noise
// records are bulk-loaded into. The Store interface keeps the Ingester and
// BatchLoader testable against an in-memory fake instead of a live
// ClickHouse connection. gridfix does not use this package; it has its own
// connection type in internal/gridfix.
package chstore

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// Config holds the connection and table parameters used by the Ingester
// and BatchLoader binaries.
type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SpotsTable string
	NoiseTable string
}

// Store is the analytic-store contract exercised by the Ingester and
// BatchLoader: ensure the schema exists, then bulk-insert spot/noise
// records in application-level batches (the driver itself also internally
// batches, but callers control the max-per-insert boundary explicitly per
// SPEC_FULL.md §4.3's max_spots_per_insert/max_noise_per_insert).
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertSpots(ctx context.Context, spots []record.Spot) error
	InsertNoise(ctx context.Context, noise []record.Noise) error
	Close() error
}

type chStore struct {
	conn clickhouse.Conn
	cfg  Config
}

// Open connects to ClickHouse and returns a Store backed by the real driver.
func Open(cfg Config) (Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chstore: connect: %w", err)
	}
	return &chStore{conn: conn, cfg: cfg}, nil
}

func (s *chStore) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.cfg.Database)); err != nil {
		return fmt.Errorf("chstore: create database: %w", err)
	}
	if err := s.conn.Exec(ctx, SpotsTableSQL(s.cfg.Database, s.cfg.SpotsTable)); err != nil {
		return fmt.Errorf("chstore: create spots table: %w", err)
	}
	if err := s.conn.Exec(ctx, NoiseTableSQL(s.cfg.Database, s.cfg.NoiseTable)); err != nil {
		return fmt.Errorf("chstore: create noise table: %w", err)
	}
	return nil
}

func (s *chStore) InsertSpots(ctx context.Context, spots []record.Spot) error {
	if len(spots) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s (%s)",
		s.cfg.Database, s.cfg.SpotsTable, joinColumns(spotColumns)))
	if err != nil {
		return fmt.Errorf("chstore: prepare spots batch: %w", err)
	}
	for _, sp := range spots {
		if err := batch.Append(
			sp.Time, int16(sp.Band), sp.RxSign, float32(sp.RxLat), float32(sp.RxLon), sp.RxLoc,
			sp.TxSign, float32(sp.TxLat), float32(sp.TxLon), sp.TxLoc,
			int32(sp.DistanceKm), float32(sp.Azimuth), float32(sp.RxAzimuth), uint64(sp.Frequency),
			int8(sp.PowerDBm), int8(sp.SNR), int8(sp.Drift),
			sp.Version, int8(sp.Code), sp.FrequencyMHz, sp.RxID,
			float32(sp.VLat), float32(sp.VLon), float32(sp.C2Noise),
			uint16(sp.SyncQuality), float32(sp.DT), uint32(sp.DecodeCycles), int16(sp.Jitter),
			float32(sp.RMSNoise), uint16(sp.BlockSize), int16(sp.Metric), uint8(sp.OSDDecode),
			uint16(sp.NHardMin), uint8(sp.IPass), boolToUint8(sp.ProxyUpload), uint32(sp.OvCount),
			statusOrDefault(sp.RxStatus), int16(sp.BandM),
		); err != nil {
			return fmt.Errorf("chstore: append spot row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("chstore: send spots batch: %w", err)
	}
	return nil
}

func (s *chStore) InsertNoise(ctx context.Context, noise []record.Noise) error {
	if len(noise) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s (%s)",
		s.cfg.Database, s.cfg.NoiseTable, joinColumns(noiseColumns)))
	if err != nil {
		return fmt.Errorf("chstore: prepare noise batch: %w", err)
	}
	for _, n := range noise {
		if err := batch.Append(
			n.Time, n.Site, n.Receiver, n.RxLoc, n.Band,
			float32(n.RMSLevel), float32(n.C2Level), n.Ov,
		); err != nil {
			return fmt.Errorf("chstore: append noise row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("chstore: send noise batch: %w", err)
	}
	return nil
}

func (s *chStore) Close() error {
	return s.conn.Close()
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func statusOrDefault(s string) string {
	if s == "" {
		return "No Info"
	}
	return s
}
