package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeights(t *testing.T) {
	weights, err := ParseWeights("qa-medical:50, qa-legal:25,qa-general:25")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"qa-medical": 50,
		"qa-legal":   25,
		"qa-general": 25,
	}, weights)
}

func TestParseWeightsEmpty(t *testing.T) {
	weights, err := ParseWeights("")
	require.NoError(t, err)
	assert.Nil(t, weights)
}

func TestParseWeightsInvalid(t *testing.T) {
	_, err := ParseWeights("qa-medical=50")
	assert.Error(t, err)

	_, err = ParseWeights("qa-medical:zero")
	assert.Error(t, err)

	_, err = ParseWeights("qa-medical:0")
	assert.Error(t, err, "non-positive weights are rejected")

	_, err = ParseWeights("qa-medical:-3")
	assert.Error(t, err)
}

func TestLoadWeightsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	content := "weights:\n  qa-medical: 50\n  qa-legal: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	weights, err := LoadWeightsFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"qa-medical": 50, "qa-legal": 25}, weights)
}

func TestLoadWeightsFileMissing(t *testing.T) {
	_, err := LoadWeightsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
