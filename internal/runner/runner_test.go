package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvMergeLaterLayersWin(t *testing.T) {
	base := map[string]string{"A": "1", "B": "2"}
	merged := EnvMerge(base, map[string]string{"B": "override"}, map[string]string{"C": "3"})

	assert.Equal(t, map[string]string{"A": "1", "B": "override", "C": "3"}, merged)
}

func TestEnvMergeWithNoLayersReturnsCopyOfBase(t *testing.T) {
	base := map[string]string{"A": "1"}
	merged := EnvMerge(base)

	assert.Equal(t, base, merged)
	merged["A"] = "changed"
	assert.Equal(t, "1", base["A"])
}

func TestEnvSliceProducesKeyValuePairs(t *testing.T) {
	out := envSlice(map[string]string{"PORT": "3000"})
	assert.Equal(t, []string{"PORT=3000"}, out)
}
