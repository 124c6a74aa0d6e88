package chstore

import "testing"

func TestSpotsTableSQL(t *testing.T) {
	sql := SpotsTableSQL("wsprdaemon", "spots")
	if !contains(sql, "wsprdaemon.spots") {
		t.Error("expected rendered database.table in SQL")
	}
	if !contains(sql, "ENGINE = ReplacingMergeTree()") {
		t.Error("expected ReplacingMergeTree engine")
	}
	if !contains(sql, "ORDER BY (time, rx_sign, tx_sign, frequency)") {
		t.Error("expected spots ordering key")
	}
}

func TestNoiseTableSQL(t *testing.T) {
	sql := NoiseTableSQL("wsprdaemon", "noise")
	if !contains(sql, "wsprdaemon.noise") {
		t.Error("expected rendered database.table in SQL")
	}
	if !contains(sql, "ORDER BY (time, site, receiver, band)") {
		t.Error("expected noise ordering key")
	}
}

func TestColumnListsMatchFieldCounts(t *testing.T) {
	if len(spotColumns) != 38 {
		t.Errorf("expected 38 spot columns, got %d", len(spotColumns))
	}
	if len(noiseColumns) != 8 {
		t.Errorf("expected 8 noise columns, got %d", len(noiseColumns))
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
