package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/ethsync/blocksync/message"
)

func TestMemAppendBlockAndResolve(t *testing.T) {
	m := NewMem()
	genesis := m.AppendBlock(0, common.Hash{}, nil)
	head := m.AppendBlock(1, genesis.Hash, []message.Extrinsic{{1, 2}})

	byNum, err := m.Header(ByNumber(1))
	require.NoError(t, err)
	require.Equal(t, head, *byNum)

	byHash, err := m.Header(ByHash(head.Hash))
	require.NoError(t, err)
	require.Equal(t, head, *byHash)

	require.Equal(t, genesis.Hash, byNum.ParentHash)
}

func TestMemHeaderMissReturnsNilNil(t *testing.T) {
	m := NewMem()
	h, err := m.Header(ByNumber(99))
	require.NoError(t, err)
	require.Nil(t, h)
}

func TestMemBlockBodyUnknownBlockErrors(t *testing.T) {
	m := NewMem()
	_, err := m.BlockBody(ByNumber(1))
	require.Error(t, err)
}

func TestMemJustificationStates(t *testing.T) {
	m := NewMem()
	head := m.AppendBlock(0, common.Hash{}, nil)

	data, present, err := m.Justification(ByHash(head.Hash))
	require.NoError(t, err)
	require.False(t, present)
	require.Nil(t, data)

	m.SetJustification(head.Hash, nil, true)
	data, present, err = m.Justification(ByHash(head.Hash))
	require.NoError(t, err)
	require.True(t, present)
	require.Empty(t, data)

	m.SetJustification(head.Hash, []byte("proof"), true)
	data, present, err = m.Justification(ByHash(head.Hash))
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, []byte("proof"), data)
}

func TestBlockIDString(t *testing.T) {
	require.Equal(t, "5", ByNumber(5).String())
	require.NotEmpty(t, ByHash(common.HexToHash("0x01")).String())
}
