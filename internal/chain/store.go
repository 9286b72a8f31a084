package chain

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/coldchain/ledger/internal/storage"
)

const (
	blockKeyPrefix = "block:"
	indexKeyPrefix = "index:"
	headKey        = "head_hash"
)

// BlockStore ties the chain.Block model to a generic key/value Store,
// grounded on original_source/node/src/db/database.py's save_block /
// get_block_by_hash / get_block_by_height / get_head_block.
type BlockStore struct {
	store   storage.Store
	batcher storage.AtomicBatcher
}

// NewBlockStore wraps store. The underlying store must support atomic
// multi-key writes (BadgerStore does); this is checked once at
// construction rather than on every SaveBlock call.
func NewBlockStore(store storage.Store) (*BlockStore, error) {
	batcher, ok := store.(storage.AtomicBatcher)
	if !ok {
		return nil, fmt.Errorf("chain: store %T does not support atomic block writes", store)
	}
	return &BlockStore{store: store, batcher: batcher}, nil
}

// SaveBlock persists block:<hash>, index:<height>, and head_hash atomically.
func (bs *BlockStore) SaveBlock(ctx context.Context, b *Block) error {
	data, err := b.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	return bs.batcher.SaveBlock(ctx, b.HashValue, b.Header.Index, data)
}

// GetBlockByHash returns the block with the given hex hash, or nil if absent.
func (bs *BlockStore) GetBlockByHash(ctx context.Context, hashHex string) (*Block, error) {
	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, fmt.Errorf("decode block hash: %w", err)
	}
	data, err := bs.store.Get(ctx, append([]byte(blockKeyPrefix), hashBytes...))
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hashHex, err)
	}
	if data == nil {
		return nil, nil
	}
	return BlockFromJSON(data)
}

// GetBlockByHeight returns the block at the given height, or nil if absent.
func (bs *BlockStore) GetBlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	key := []byte(fmt.Sprintf("%s%d", indexKeyPrefix, height))
	hashBytes, err := bs.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get index for height %d: %w", height, err)
	}
	if hashBytes == nil {
		return nil, nil
	}
	return bs.GetBlockByHash(ctx, hex.EncodeToString(hashBytes))
}

// GetHeadBlock returns the current chain head, or nil if the store is empty
// (no genesis block has been written yet).
func (bs *BlockStore) GetHeadBlock(ctx context.Context) (*Block, error) {
	hashBytes, err := bs.store.Get(ctx, []byte(headKey))
	if err != nil {
		return nil, fmt.Errorf("get head pointer: %w", err)
	}
	if hashBytes == nil {
		return nil, nil
	}
	return bs.GetBlockByHash(ctx, hex.EncodeToString(hashBytes))
}
