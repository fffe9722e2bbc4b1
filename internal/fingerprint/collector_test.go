package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsbind/internal/shared/testutil"
)

func TestCollect(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	collector := NewCollector(logger)

	fp, err := collector.Collect()
	require.NoError(t, err)

	assert.True(t, fp.WellFormed())
	assert.Len(t, fp.Components, 5)

	names := make(map[string]bool)
	for _, c := range fp.Components {
		names[c.Name] = true
		assert.NotEmpty(t, c.Value, "component %s has no value", c.Name)
	}
	for _, want := range []string{ComponentCPU, ComponentHostname, ComponentOS, ComponentPlatform, ComponentMAC} {
		assert.True(t, names[want], "missing component %s", want)
	}
}

func TestCollectIsDeterministic(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	collector := NewCollector(logger)

	first, err := collector.Collect()
	require.NoError(t, err)

	// Fresh collection on the same machine yields the same hashes
	collector.ClearCache()
	second, err := collector.Collect()
	require.NoError(t, err)

	assert.Equal(t, first.PrimaryHash, second.PrimaryHash)
	assert.Equal(t, first.SecondaryHash, second.SecondaryHash)
}

func TestCollectUsesCache(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	collector := NewCollector(logger)

	_, err := collector.Collect()
	require.NoError(t, err)
	collected := len(handler.Records())

	_, err = collector.Collect()
	require.NoError(t, err)

	// The cached path emits no further collection logs
	assert.Equal(t, collected, len(handler.Records()))
}

func TestShortHash(t *testing.T) {
	assert.Len(t, shortHash("anything"), 16)
	assert.Equal(t, shortHash("a"), shortHash("a"))
	assert.NotEqual(t, shortHash("a"), shortHash("b"))
}
