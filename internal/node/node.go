// Package node wires together storage, world-state, the chain model, the
// mempool, the contract host, consensus, and the flood broadcast
// transport into a single running validator. It replaces the reference
// tree's internal/gcl orchestrator, which depended on a devp2p transport
// and mismatched consensus/API constructors.
package node

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coldchain/ledger/internal/broadcast"
	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/coldchain/ledger/internal/consensus"
	"github.com/coldchain/ledger/internal/contracts"
	"github.com/coldchain/ledger/internal/mempool"
	"github.com/coldchain/ledger/internal/storage"
	"github.com/coldchain/ledger/internal/worldstate"
	"go.uber.org/zap"
)

// Options configures a Node at construction time.
type Options struct {
	NodeID         string
	Validators     []string
	PrimaryID      string
	DataDir        string
	ListenAddress  string
	BootstrapPeers []string

	// GenesisContract, if non-empty, is deployed directly against
	// world-state before the genesis block is sealed, mirroring
	// blockchain.py's _initialize_chain. Empty skips genesis deployment.
	GenesisContract     string
	GenesisContractArgs map[string]interface{}
}

// Node is one running validator.
type Node struct {
	opts Options

	store     storage.Store
	blocks    *chain.BlockStore
	world     *worldstate.WorldState
	pool      *mempool.Mempool
	engine    *consensus.Engine
	transport *broadcast.FloodTransport
	logger    *zap.Logger
}

// New constructs and starts a Node: opens storage, starts the flood
// transport, builds the consensus engine, ensures genesis exists, and
// connects to any configured bootstrap peers.
func New(opts Options, logger *zap.Logger) (*Node, error) {
	store, err := storage.NewBadgerStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	blocks, err := chain.NewBlockStore(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: init block store: %w", err)
	}

	world := worldstate.New(store)
	pool := mempool.New()

	n := &Node{
		opts:   opts,
		store:  store,
		blocks: blocks,
		world:  world,
		pool:   pool,
		logger: logger,
	}

	transport, err := broadcast.NewFloodTransport(opts.ListenAddress, n, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: start broadcast transport: %w", err)
	}
	n.transport = transport

	primary := opts.PrimaryID
	if primary == "" && len(opts.Validators) > 0 {
		primary = opts.Validators[0]
	}
	n.engine = consensus.NewEngine(consensus.Config{
		NodeID:     opts.NodeID,
		Validators: opts.Validators,
		PrimaryID:  primary,
	}, blocks, world, pool, transport, logger)

	if err := n.ensureGenesis(context.Background()); err != nil {
		transport.Close()
		store.Close()
		return nil, fmt.Errorf("node: ensure genesis: %w", err)
	}

	for _, p := range opts.BootstrapPeers {
		if err := transport.AddPeer(p); err != nil {
			logger.Warn("failed to connect to bootstrap peer", zap.String("peer", p), zap.Error(err))
		}
	}

	return n, nil
}

// ensureGenesis creates block 0 if the store is empty, optionally
// deploying a built-in contract directly against world-state first and
// folding the resulting state root into the genesis header — mirroring
// blockchain.py's _initialize_chain.
func (n *Node) ensureGenesis(ctx context.Context) error {
	head, err := n.blocks.GetHeadBlock(ctx)
	if err != nil {
		return fmt.Errorf("load head: %w", err)
	}
	if head != nil {
		return nil
	}

	if n.opts.GenesisContract != "" {
		deployTx, err := n.buildGenesisDeployTx()
		if err != nil {
			return fmt.Errorf("build genesis deploy tx: %w", err)
		}
		if err := contracts.Execute(ctx, n.world, deployTx); err != nil {
			return fmt.Errorf("execute genesis deployment: %w", err)
		}
	}

	genesis := chain.NewGenesisBlock()
	stateRoot, err := n.world.StateRoot(ctx)
	if err != nil {
		return fmt.Errorf("compute genesis state root: %w", err)
	}
	genesis.Header.StateRoot = stateRoot
	genesis.RecomputeHash()

	return n.blocks.SaveBlock(ctx, genesis)
}

func (n *Node) buildGenesisDeployTx() (*chain.Transaction, error) {
	args, err := json.Marshal(map[string]interface{}{
		"contract": n.opts.GenesisContract,
		"args":     n.opts.GenesisContractArgs,
	})
	if err != nil {
		return nil, err
	}
	tx := &chain.Transaction{
		Nonce:     0,
		Sender:    "genesis-deployer",
		Recipient: chain.DeploySentinel,
		Data:      string(args),
		Timestamp: chain.GenesisTimestamp,
		Signature: "genesis",
	}
	hash, err := tx.ComputeHash()
	if err != nil {
		return nil, err
	}
	tx.Hash = hash
	return tx, nil
}

// InboundTx satisfies broadcast.Dispatcher: decode and admit a transaction
// received over the flood transport.
func (n *Node) InboundTx(ctx context.Context, payload []byte) error {
	var tx chain.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return fmt.Errorf("malformed transaction: %w", err)
	}
	n.engine.InboundTx(ctx, &tx)
	return nil
}

// InboundConsensus satisfies broadcast.Dispatcher: forward a consensus
// message to the engine.
func (n *Node) InboundConsensus(ctx context.Context, payload []byte) error {
	return n.engine.InboundConsensus(ctx, payload)
}

// SubmitTx admits a client-submitted, already-signed transaction.
func (n *Node) SubmitTx(ctx context.Context, tx *chain.Transaction) mempool.AdmitResult {
	return n.engine.InboundTx(ctx, tx)
}

// Mine triggers the primary to propose a block from the current mempool.
func (n *Node) Mine(ctx context.Context) error {
	return n.engine.Propose(ctx)
}

// GetBlockByHeight returns the block at height, or nil if absent.
func (n *Node) GetBlockByHeight(ctx context.Context, height uint64) (*chain.Block, error) {
	return n.blocks.GetBlockByHeight(ctx, height)
}

// GetBlockByHash returns the block with hash, or nil if absent.
func (n *Node) GetBlockByHash(ctx context.Context, hash string) (*chain.Block, error) {
	return n.blocks.GetBlockByHash(ctx, hash)
}

// GetHeadBlock returns the chain head, or nil if not yet initialized.
func (n *Node) GetHeadBlock(ctx context.Context) (*chain.Block, error) {
	return n.blocks.GetHeadBlock(ctx)
}

// GetContractStorage returns the storage dict for a deployed contract.
func (n *Node) GetContractStorage(ctx context.Context, address string) (map[string]interface{}, error) {
	return n.world.GetContractStorage(ctx, address)
}

// FindContractAddressByName looks up a deployed contract's address by its
// code name.
func (n *Node) FindContractAddressByName(ctx context.Context, name string) (string, bool, error) {
	return n.world.FindContractAddressByName(ctx, name)
}

// Mempool returns a snapshot of pending transactions.
func (n *Node) Mempool() []*chain.Transaction {
	return n.pool.List()
}

// ConsensusVotingHash reports the in-flight round's voting hash, or "" if
// idle. Exposed so peers (and tests) can construct PREPARE/COMMIT votes
// without reaching into the engine directly.
func (n *Node) ConsensusVotingHash() string {
	return n.engine.VotingHash()
}

// ConsensusPhase reports the engine's current phase, for diagnostics.
func (n *Node) ConsensusPhase() string {
	return n.engine.Phase().String()
}

// Halted reports whether the engine has permanently halted, and why.
func (n *Node) Halted() (bool, string) {
	return n.engine.Halted()
}

// ValidatorAddress derives a validator identity's address from its public
// key hex, used by API handlers that need to echo the node's own address.
func ValidatorAddress(pubKeyHex string) string {
	return chaincrypto.AddressFromPublicKeyHex(pubKeyHex)
}

// Close releases all resources held by the node.
func (n *Node) Close() error {
	if err := n.transport.Close(); err != nil {
		n.logger.Warn("error closing broadcast transport", zap.Error(err))
	}
	return n.store.Close()
}
