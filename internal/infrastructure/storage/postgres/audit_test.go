package postgres

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_CompressesLargeChanges(t *testing.T) {
	s, err := NewAuditService(nil)
	require.NoError(t, err)

	small := json.RawMessage(`{"prefix":{"old":"","new":"INV/"}}`)
	algo, changes, compressed := s.compress(small)
	assert.Equal(t, CompressionNone, algo)
	assert.Equal(t, small, changes)
	assert.Nil(t, compressed)

	large, err := json.Marshal(map[string]string{"suffix": strings.Repeat("x", 20*1024)})
	require.NoError(t, err)

	algo, changes, compressed = s.compress(large)
	assert.Equal(t, CompressionZstd, algo)
	assert.Nil(t, changes)
	assert.Less(t, len(compressed), len(large))

	entry := AuditEntry{CompressionAlgo: algo, ChangesCompressed: compressed}
	require.NoError(t, s.decompress(&entry))
	assert.JSONEq(t, string(large), string(entry.Changes))
	assert.Nil(t, entry.ChangesCompressed)
}
