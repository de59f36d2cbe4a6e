package state

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Symbol string
	Price  float64
}

func TestSaveAndLoadJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "positions.json")
	in := []record{{Symbol: "BTCUSDT", Price: 100}}

	require.NoError(t, SaveJSON(path, in))

	var out []record
	require.NoError(t, LoadJSON(path, &out))
	assert.Equal(t, in, out)
}

func TestLoadJSON_MissingFileIsNotAnError(t *testing.T) {
	var out []record
	err := LoadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestLoadJSON_EmptyFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var out []record
	assert.NoError(t, LoadJSON(path, &out))
}

func TestSaveJSON_OverwritesPreviousContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, SaveJSON(path, []record{{Symbol: "AAA"}}))
	require.NoError(t, SaveJSON(path, []record{{Symbol: "BBB"}}))

	var out []record
	require.NoError(t, LoadJSON(path, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "BBB", out[0].Symbol)
}

func TestAppendJSONL_AppendsOneLinePerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger", "pnl_ledger.jsonl")
	require.NoError(t, AppendJSONL(path, record{Symbol: "AAA", Price: 1}))
	require.NoError(t, AppendJSONL(path, record{Symbol: "BBB", Price: 2}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}
