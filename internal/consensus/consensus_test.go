package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/coldchain/ledger/internal/mempool"
	"github.com/coldchain/ledger/internal/storage"
	"github.com/coldchain/ledger/internal/worldstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingBroadcaster captures outbound messages instead of sending them
// anywhere, so tests can inspect what the engine wanted to say.
type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []struct {
		endpoint string
		payload  []byte
	}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, endpoint string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, struct {
		endpoint string
		payload  []byte
	}{endpoint, payload})
	return nil
}

func (b *recordingBroadcaster) last() (string, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sent) == 0 {
		return "", nil
	}
	last := b.sent[len(b.sent)-1]
	return last.endpoint, last.payload
}

func newTestEngine(t *testing.T, nodeID string) (*Engine, *recordingBroadcaster) {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	blockStore, err := chain.NewBlockStore(store)
	require.NoError(t, err)

	genesis := chain.NewGenesisBlock()
	genesis.Header.StateRoot = "00"
	genesis.RecomputeHash()
	require.NoError(t, blockStore.SaveBlock(context.Background(), genesis))

	world := worldstate.New(store)
	pool := mempool.New()
	bc := &recordingBroadcaster{}

	cfg := Config{NodeID: nodeID, Validators: []string{"node-a", "node-b", "node-c", "node-d"}, PrimaryID: "node-a"}
	return NewEngine(cfg, blockStore, world, pool, bc, zap.NewNop()), bc
}

func signedTx(t *testing.T) *chain.Transaction {
	t.Helper()
	kp, err := chaincrypto.GenerateKeyPair()
	require.NoError(t, err)
	tx := &chain.Transaction{Nonce: 0, Recipient: "0xabc", Amount: 1, Timestamp: 1700000000}
	require.NoError(t, tx.Sign(kp))
	return tx
}

func TestProposeRejectsNonPrimary(t *testing.T) {
	engine, _ := newTestEngine(t, "node-b")
	err := engine.Propose(context.Background())
	assert.Error(t, err)
}

func TestProposeBroadcastsPrePrepare(t *testing.T) {
	engine, bc := newTestEngine(t, "node-a")
	tx := signedTx(t)
	engine.InboundTx(context.Background(), tx)

	require.NoError(t, engine.Propose(context.Background()))
	assert.Equal(t, PrePrepared, engine.Phase())

	endpoint, payload := bc.last()
	assert.Equal(t, ConsensusEndpoint, endpoint)
	var msg PrePrepareMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, msgTypePrePrepare, msg.Type)
}

func TestFullRoundCommitsBlock(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "node-a")
	tx := signedTx(t)
	engine.InboundTx(ctx, tx)
	require.NoError(t, engine.Propose(ctx))

	votingHash := engine.votingHash
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-c"})
	assert.Equal(t, Prepared, engine.Phase())

	engine.HandleCommit(ctx, CommitMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandleCommit(ctx, CommitMessage{VotingHash: votingHash, SenderID: "node-c"})

	assert.Equal(t, Idle, engine.Phase(), "engine resets to IDLE after commit")

	head, err := engine.store.GetHeadBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, uint64(1), head.Header.Index)
	assert.NotEmpty(t, head.Header.StateRoot)
}

func TestCommitBeforePrepareQuorumIsBuffered(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "node-a")
	tx := signedTx(t)
	engine.InboundTx(ctx, tx)
	require.NoError(t, engine.Propose(ctx))
	votingHash := engine.votingHash

	// COMMIT votes arrive before prepare quorum is reached.
	engine.HandleCommit(ctx, CommitMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandleCommit(ctx, CommitMessage{VotingHash: votingHash, SenderID: "node-c"})
	assert.Equal(t, PrePrepared, engine.Phase(), "commit votes alone must not advance the phase")

	// Now prepare quorum arrives; this should immediately consume the
	// already-buffered commit votes and commit the block in one step.
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-c"})

	assert.Equal(t, Idle, engine.Phase())
	head, err := engine.store.GetHeadBlock(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, uint64(1), head.Header.Index)
}

func TestDuplicateVoteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "node-a")
	tx := signedTx(t)
	engine.InboundTx(ctx, tx)
	require.NoError(t, engine.Propose(ctx))
	votingHash := engine.votingHash

	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-b"})
	engine.HandlePrepare(ctx, PrepareMessage{VotingHash: votingHash, SenderID: "node-b"})

	engine.mu.Lock()
	count := len(engine.prepareVotes[votingHash])
	engine.mu.Unlock()
	assert.Equal(t, 2, count, "self-vote plus one distinct remote voter, regardless of repeats")
}

func TestPrePrepareWithWrongParentIsRejected(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t, "node-b")

	bogus := chain.NewBlock(5, "not-the-real-parent-hash", "node-a", nil, 1700000000)
	err := engine.HandlePrePrepare(ctx, PrePrepareMessage{
		Type: msgTypePrePrepare, Block: bogus, SenderID: "node-a", VotingHash: bogus.VotingHash(),
	})
	require.NoError(t, err)
	assert.Equal(t, Idle, engine.Phase(), "mismatched parent must leave the replica at IDLE")
}
