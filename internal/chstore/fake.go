package chstore

import (
	"context"
	"sync"

	"github.com/rrobinett/wsprdaemon-server/pkg/record"
)

// Fake is an in-memory Store used by tests in this package and by the
// ingester/batchloader packages' own tests, avoiding a live ClickHouse
// dependency for unit tests.
type Fake struct {
	mu          sync.Mutex
	Spots       []record.Spot
	Noise       []record.Noise
	SchemaCalls int
	FailInsert  bool // when true, InsertSpots/InsertNoise always return an error
	FailSchema  bool
}

func NewFake() *Fake { return &Fake{} }

func (f *Fake) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SchemaCalls++
	if f.FailSchema {
		return errSchema
	}
	return nil
}

func (f *Fake) InsertSpots(ctx context.Context, spots []record.Spot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailInsert {
		return errInsert
	}
	f.Spots = append(f.Spots, spots...)
	return nil
}

func (f *Fake) InsertNoise(ctx context.Context, noise []record.Noise) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailInsert {
		return errInsert
	}
	f.Noise = append(f.Noise, noise...)
	return nil
}

func (f *Fake) Close() error { return nil }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const (
	errSchema = fakeErr("chstore: fake schema failure")
	errInsert = fakeErr("chstore: fake insert failure")
)
