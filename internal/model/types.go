package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NetworkSpec describes a network as an ordered list of layers.
type NetworkSpec struct {
	VersionedRecord
	Layers []LayerSpec `json:"layers"`
}

// LayerSpec describes one layer. Linear layers use InSize, OutSize and
// Weights (row-major, one row of InSize weights per output); activation
// layers use Activation.
type LayerSpec struct {
	Kind       string    `json:"kind"`
	InSize     int       `json:"in_size,omitempty"`
	OutSize    int       `json:"out_size,omitempty"`
	Weights    []float64 `json:"weights,omitempty"`
	Activation string    `json:"activation,omitempty"`
}

// RunRecord summarises one training run. Trained weights are not recorded.
// A loss that could not be computed as a finite value is left nil.
type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Task         string    `json:"task"`
	Architecture string    `json:"architecture"`
	NumParams    int       `json:"num_params"`
	Steps        int       `json:"steps"`
	StepSize     float64   `json:"step_size"`
	Seed         int64     `json:"seed"`
	InitialLoss  *float64  `json:"initial_loss,omitempty"`
	FinalLoss    *float64  `json:"final_loss,omitempty"`
	Stopped      string    `json:"stopped,omitempty"`
}
