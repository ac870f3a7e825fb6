package blocklog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gamebankcore/core/types"
)

func openTestLog(t *testing.T) (*Log, string, string) {
	t.Helper()
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "blocks.log")
	idxPath := filepath.Join(dir, "blocks.idx")
	log, err := Open(dataPath, idxPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log, dataPath, idxPath
}

func testBlock(num uint64, witness string) *types.Block {
	return &types.Block{Header: types.BlockHeader{Number: num, Witness: witness, Timestamp: int64(num) * 3}}
}

func TestAppendAndReadBlockByNum(t *testing.T) {
	log, _, _ := openTestLog(t)

	require.NoError(t, log.Append(testBlock(1, "alice")))
	require.NoError(t, log.Append(testBlock(2, "alice")))

	head, ok := log.Head()
	require.True(t, ok)
	require.Equal(t, uint64(2), head)

	b1, err := log.ReadBlockByNum(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), b1.Header.Number)

	b2, err := log.ReadBlockByNum(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), b2.Header.Number)
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	log, _, _ := openTestLog(t)
	require.NoError(t, log.Append(testBlock(1, "alice")))

	err := log.Append(testBlock(3, "alice"))
	require.Error(t, err, "appending block 3 directly after block 1 should be rejected")
}

func TestReadBlockByNumRejectsBeyondHead(t *testing.T) {
	log, _, _ := openTestLog(t)
	require.NoError(t, log.Append(testBlock(1, "alice")))

	_, err := log.ReadBlockByNum(2)
	require.Error(t, err)
}

func TestReopenRecoversHeadFromFiles(t *testing.T) {
	log, dataPath, idxPath := openTestLog(t)
	require.NoError(t, log.Append(testBlock(1, "alice")))
	require.NoError(t, log.Append(testBlock(2, "alice")))
	require.NoError(t, log.Close())

	reopened, err := Open(dataPath, idxPath)
	require.NoError(t, err)
	defer reopened.Close()

	head, ok := reopened.Head()
	require.True(t, ok)
	require.Equal(t, uint64(2), head)

	b2, err := reopened.ReadBlockByNum(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), b2.Header.Number)
}

func TestEmptyLogHasNoHead(t *testing.T) {
	log, _, _ := openTestLog(t)
	_, ok := log.Head()
	require.False(t, ok)
}
