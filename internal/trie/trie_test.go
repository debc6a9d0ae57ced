package trie

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lux/starknode/internal/felt"
)

func identityLeaf(_ felt.Felt, v felt.Felt) felt.Felt { return v }

func TestTrieCommitIsDeterministic(t *testing.T) {
	t1 := New(identityLeaf)
	t1.Insert(felt.FromUint64(1), felt.FromUint64(100))
	t1.Insert(felt.FromUint64(2), felt.FromUint64(200))
	root1, err := t1.Commit(0)
	require.NoError(t, err)

	t2 := New(identityLeaf)
	t2.Insert(felt.FromUint64(2), felt.FromUint64(200))
	t2.Insert(felt.FromUint64(1), felt.FromUint64(100))
	root2, err := t2.Commit(0)
	require.NoError(t, err)

	require.True(t, root1.Equal(root2), "root must not depend on insertion order")
}

func TestTrieCommitMustIncreaseBlockNumber(t *testing.T) {
	tr := New(identityLeaf)
	tr.Insert(felt.FromUint64(1), felt.FromUint64(100))
	_, err := tr.Commit(5)
	require.NoError(t, err)

	_, err = tr.Commit(5)
	require.Error(t, err)
	_, err = tr.Commit(4)
	require.Error(t, err)
}

func TestTrieRevertToBlockDiscardsLaterCommits(t *testing.T) {
	tr := New(identityLeaf)
	tr.Insert(felt.FromUint64(1), felt.FromUint64(1))
	root0, err := tr.Commit(0)
	require.NoError(t, err)

	tr.Insert(felt.FromUint64(1), felt.FromUint64(2))
	_, err = tr.Commit(1)
	require.NoError(t, err)
	require.False(t, tr.Root().Equal(root0))

	require.NoError(t, tr.RevertToBlock(0))
	require.True(t, tr.Root().Equal(root0))

	v, ok := tr.Get(felt.FromUint64(1))
	require.True(t, ok)
	require.True(t, v.Equal(felt.FromUint64(1)))
}

func TestTrieRevertThenReplayIsDeterministic(t *testing.T) {
	tr := New(identityLeaf)
	tr.Insert(felt.FromUint64(1), felt.FromUint64(1))
	_, err := tr.Commit(0)
	require.NoError(t, err)

	tr.Insert(felt.FromUint64(2), felt.FromUint64(2))
	rootA, err := tr.Commit(1)
	require.NoError(t, err)

	require.NoError(t, tr.RevertToBlock(0))
	tr.Insert(felt.FromUint64(2), felt.FromUint64(2))
	rootB, err := tr.Commit(1)
	require.NoError(t, err)

	require.True(t, rootA.Equal(rootB))
}

func TestContractTrieLeafFoldsClassStorageNonce(t *testing.T) {
	ct := NewContractTrie()
	addr := felt.FromUint64(42)
	st := ct.StorageTrieFor(addr)
	st.Insert(felt.FromUint64(7), felt.FromUint64(777))

	leaf, err := ct.CommitContract(addr, 0, felt.FromUint64(9), 3)
	require.NoError(t, err)
	require.False(t, leaf.IsZero())

	_, err = ct.Commit(0)
	require.NoError(t, err)

	v, ok := ct.Get(addr)
	require.True(t, ok)
	require.True(t, v.Equal(leaf))
}

func TestClassTrieLeafDependsOnCompiledHash(t *testing.T) {
	ct := NewClassTrie()
	classHash := felt.FromUint64(1)
	ct.InsertClass(classHash, felt.FromUint64(2))
	rootA, err := ct.Commit(0)
	require.NoError(t, err)

	ct2 := NewClassTrie()
	ct2.InsertClass(classHash, felt.FromUint64(3))
	rootB, err := ct2.Commit(0)
	require.NoError(t, err)

	require.False(t, rootA.Equal(rootB))
}
