package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"dualgrad/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}

// DecodeNetworkSpec accepts hand-written specs that omit both version fields
// and stamps them with the current versions.
func DecodeNetworkSpec(data []byte) (model.NetworkSpec, error) {
	var spec model.NetworkSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return model.NetworkSpec{}, err
	}
	if spec.VersionedRecord == (model.VersionedRecord{}) {
		spec.VersionedRecord = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
	}
	if err := checkVersion(spec.VersionedRecord); err != nil {
		return model.NetworkSpec{}, err
	}
	return spec, nil
}

func EncodeLossHistory(losses []float64) ([]byte, error) {
	return json.Marshal(losses)
}

func DecodeLossHistory(data []byte) ([]float64, error) {
	var losses []float64
	if err := json.Unmarshal(data, &losses); err != nil {
		return nil, err
	}
	return losses, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
