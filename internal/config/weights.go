package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// weightsFile is the YAML shape of the allocation weights file:
//
//	weights:
//	  qa-medical: 50
//	  qa-legal: 25
type weightsFile struct {
	Weights map[string]int `yaml:"weights"`
}

// LoadWeightsFile reads allocation weights from a YAML file. Groups with
// non-positive weights are rejected so a typo cannot silently starve a group.
func LoadWeightsFile(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var wf weightsFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	if err := validateWeights(wf.Weights); err != nil {
		return nil, fmt.Errorf("weights file %s: %w", path, err)
	}
	return wf.Weights, nil
}

// ParseWeights parses the "group:weight,group:weight" list form used by the
// LABELQ_WEIGHTS environment variable. An empty input yields nil, which
// disables quota-based sampling.
func ParseWeights(s string) (map[string]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	weights := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		group, val, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("weight entry %q: want group:weight", part)
		}
		w, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("weight entry %q: %w", part, err)
		}
		weights[strings.TrimSpace(group)] = w
	}

	if err := validateWeights(weights); err != nil {
		return nil, err
	}
	return weights, nil
}

func validateWeights(weights map[string]int) error {
	for group, w := range weights {
		if group == "" {
			return fmt.Errorf("empty group name")
		}
		if w <= 0 {
			return fmt.Errorf("group %q: weight must be positive, got %d", group, w)
		}
	}
	return nil
}
