// Package worldstate stores contract code and contract storage, and
// computes the whole-store state digest folded into each block's
// stateRoot. Grounded on original_source/node/src/state/world_state.py.
// This is explicitly NOT a Merkle-Patricia trie: the digest is a single
// cumulative hash over store entries in iteration order.
package worldstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coldchain/ledger/internal/storage"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// ContractStoragePrefix namespaces per-contract key/value storage.
	ContractStoragePrefix = "contract_storage:"
	// ContractCodePrefix namespaces the deployed contract-code name for
	// each contract address.
	ContractCodePrefix = "contract_code:"
)

// WorldState is a thin, mutex-guarded facade over a Store for contract
// code and storage. Execution is single-writer (serialized by the
// consensus engine's COMMITTED transition), so contention here is
// expected to be low; the mutex exists to make concurrent API reads safe.
type WorldState struct {
	mu    sync.Mutex
	store storage.Store
}

// New wraps store.
func New(store storage.Store) *WorldState {
	return &WorldState{store: store}
}

// SetContractCode records the deployed contract-code name at address.
func (ws *WorldState) SetContractCode(ctx context.Context, address, codeName string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.store.Set(ctx, []byte(ContractCodePrefix+address), []byte(codeName))
}

// GetContractCode returns the contract-code name deployed at address, or
// "" if no contract is deployed there.
func (ws *WorldState) GetContractCode(ctx context.Context, address string) (string, error) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	val, err := ws.store.Get(ctx, []byte(ContractCodePrefix+address))
	if err != nil {
		return "", fmt.Errorf("get contract code at %s: %w", address, err)
	}
	return string(val), nil
}

// SetContractStorage replaces the entire storage dict for address. The
// dict is serialized as JSON; Go's map marshaling sorts keys, which keeps
// the resulting bytes deterministic across replicas for equal logical
// state.
func (ws *WorldState) SetContractStorage(ctx context.Context, address string, storage map[string]interface{}) error {
	data, err := json.Marshal(storage)
	if err != nil {
		return fmt.Errorf("marshal contract storage for %s: %w", address, err)
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.store.Set(ctx, []byte(ContractStoragePrefix+address), data)
}

// GetContractStorage returns the storage dict for address, or an empty map
// if nothing has been stored yet.
func (ws *WorldState) GetContractStorage(ctx context.Context, address string) (map[string]interface{}, error) {
	ws.mu.Lock()
	data, err := ws.store.Get(ctx, []byte(ContractStoragePrefix+address))
	ws.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("get contract storage for %s: %w", address, err)
	}
	if data == nil {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal contract storage for %s: %w", address, err)
	}
	return m, nil
}

// FindContractAddressByName returns the first deployed address whose code
// name equals name, scanning the contract-code namespace in store order.
func (ws *WorldState) FindContractAddressByName(ctx context.Context, name string) (string, bool, error) {
	var found string
	err := ws.withIterate(ctx, []byte(ContractCodePrefix), func(key, value []byte) error {
		if found != "" {
			return nil
		}
		if string(value) == name {
			found = string(key[len(ContractCodePrefix):])
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

func (ws *WorldState) withIterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.store.Iterate(ctx, prefix, fn)
}

// StateRoot folds every contract_storage: entry into a single cumulative
// keccak256 digest, iterated in store order. This is the value stamped
// into a block's stateRoot header field.
func (ws *WorldState) StateRoot(ctx context.Context) (string, error) {
	hasher := crypto.NewKeccakState()
	err := ws.withIterate(ctx, []byte(ContractStoragePrefix), func(key, value []byte) error {
		hasher.Write(key)
		hasher.Write(value)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fold world-state digest: %w", err)
	}
	var sum [32]byte
	if _, err := hasher.Read(sum[:]); err != nil {
		return "", fmt.Errorf("read world-state digest: %w", err)
	}
	return fmt.Sprintf("%x", sum), nil
}
