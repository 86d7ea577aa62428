package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"sticksolo/internal/kinematics"
	api "sticksolo/pkg/sticksolo"
)

// loadConfigFile decodes path into out, which should already hold defaults.
// Files ending in .yaml or .yml are YAML, everything else JSON. Unknown keys
// are rejected in both.
func loadConfigFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode yaml %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("decode json %s: %w", path, err)
		}
	}
	return nil
}

func loadTrainRequest(path string) (api.TrainRequest, error) {
	req := api.DefaultTrainRequest()
	if err := loadConfigFile(path, &req); err != nil {
		return api.TrainRequest{}, err
	}
	if err := req.Optimizer.Validate(); err != nil {
		return api.TrainRequest{}, err
	}
	if err := req.World.Validate(); err != nil {
		return api.TrainRequest{}, err
	}
	return req, nil
}

// parseVec reads "x,y".
func parseVec(s string) (kinematics.Vec2, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return kinematics.Vec2{}, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return kinematics.Vec2{}, fmt.Errorf("parse x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return kinematics.Vec2{}, fmt.Errorf("parse y: %w", err)
	}
	return kinematics.V(x, y), nil
}
