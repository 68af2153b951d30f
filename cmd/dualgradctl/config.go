package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"dualgrad/internal/model"
	"dualgrad/internal/nn"
	"dualgrad/internal/storage"
	"dualgrad/pkg/dualgrad"
)

func loadRunRequestFromConfig(path string) (dualgrad.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dualgrad.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return dualgrad.RunRequest{}, err
	}

	var req dualgrad.RunRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asString(raw["task"]); ok {
		req.Task = v
	}
	if v, ok := asInt(raw["steps"]); ok {
		if v <= 0 {
			return dualgrad.RunRequest{}, errors.New("steps must be > 0")
		}
		req.Steps = v
	}
	if v, ok := asFloat64(raw["step_size"]); ok {
		req.StepSize = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["log_every"]); ok {
		req.LogEvery = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := raw["network"]; ok && v != nil {
		spec, err := asNetworkSpec(v)
		if err != nil {
			return dualgrad.RunRequest{}, fmt.Errorf("network: %w", err)
		}
		req.Network = spec
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (dualgrad.RunRequest, error) {
	if configPath == "" {
		return dualgrad.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return dualgrad.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// loadNetworkSpec reads a network spec file, or returns the default network
// when path is empty.
func loadNetworkSpec(path string) (model.NetworkSpec, error) {
	if path == "" {
		return dualgrad.DefaultNetwork(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.NetworkSpec{}, err
	}
	spec, err := storage.DecodeNetworkSpec(data)
	if err != nil {
		return model.NetworkSpec{}, fmt.Errorf("decode network %s: %w", path, err)
	}
	return spec, nil
}

func asNetworkSpec(v any) (model.NetworkSpec, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return model.NetworkSpec{}, err
	}
	return storage.DecodeNetworkSpec(data)
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *dualgrad.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "task":
			req.Task = v.(string)
		case "steps":
			req.Steps = v.(int)
		case "step-size":
			req.StepSize = v.(float64)
		case "seed":
			req.Seed = v.(int64)
		case "log-every":
			req.LogEvery = v.(int)
		case "workers":
			req.Workers = v.(int)
		case "network":
			spec, err := loadNetworkSpec(v.(string))
			if err != nil {
				return err
			}
			req.Network = spec
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

// parseInputs reads a comma separated list of numbers.
func parseInputs(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse input %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseParamIndex reads "layer:param".
func parseParamIndex(s string) (*nn.ParamIndex, error) {
	if s == "" {
		return nil, nil
	}
	layer, param, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("active must be layer:param, got %q", s)
	}
	l, err := strconv.Atoi(strings.TrimSpace(layer))
	if err != nil {
		return nil, fmt.Errorf("active layer: %w", err)
	}
	p, err := strconv.Atoi(strings.TrimSpace(param))
	if err != nil {
		return nil, fmt.Errorf("active param: %w", err)
	}
	return &nn.ParamIndex{Layer: l, Param: p}, nil
}
