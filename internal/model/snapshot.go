package model

import (
	"encoding/json"
	"time"
)

// SnapshotKind names what a stored snapshot document contains.
type SnapshotKind string

const (
	SnapshotContracts SnapshotKind = "contracts"
	SnapshotMetrics   SnapshotKind = "metrics"
	SnapshotInsight   SnapshotKind = "insight"
)

// Snapshot is a point-in-time document captured from an enrichment run so
// dashboards can serve the last known result without hitting the CRM.
type Snapshot struct {
	ID      string          `json:"id"`
	Kind    SnapshotKind    `json:"kind"`
	TakenAt time.Time       `json:"takenAt"`
	Data    json.RawMessage `json:"data"`
}

// SnapshotMeta is a snapshot listing entry without the document body.
type SnapshotMeta struct {
	ID      string       `json:"id"`
	Kind    SnapshotKind `json:"kind"`
	TakenAt time.Time    `json:"takenAt"`
	Size    int          `json:"size"`
}
