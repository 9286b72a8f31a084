package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/chaincrypto"
	"github.com/coldchain/ledger/internal/worldstate"
)

// deployPayload is the JSON shape a deploy transaction's Data may carry:
// {"contract": "PharmaContract", "args": {...}}. A bare contract name with
// no constructor arguments is also accepted.
type deployPayload struct {
	Contract string                 `json:"contract"`
	Args     map[string]interface{} `json:"args"`
}

// callPayload is the JSON shape a call transaction's Data carries:
// {"method": "record_temperature", "params": {...}}.
type callPayload struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

// Execute runs tx against world-state: a deploy transaction (Recipient ==
// chain.DeploySentinel) instantiates and constructs a new contract; any
// other transaction calls a method on the contract already deployed at
// Recipient. Grounded on original_source/node/src/vm/executor.py's
// execute_transaction dispatch, with the static registry above in place of
// its importlib/getattr reflection.
func Execute(ctx context.Context, ws *worldstate.WorldState, tx *chain.Transaction) error {
	if tx.Recipient == chain.DeploySentinel {
		return deploy(ctx, ws, tx)
	}
	return call(ctx, ws, tx)
}

func deploy(ctx context.Context, ws *worldstate.WorldState, tx *chain.Transaction) error {
	name, args, err := parseDeployData(tx.Data)
	if err != nil {
		return fmt.Errorf("parse deploy payload: %w", err)
	}
	ctor, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("unknown contract code %q", name)
	}

	address := chaincrypto.ContractAddress(tx.Hash)
	instance := ctor(address, tx.Sender)
	if err := instance.Construct(args); err != nil {
		return fmt.Errorf("construct %s at %s: %w", name, address, err)
	}

	if err := ws.SetContractCode(ctx, address, name); err != nil {
		return fmt.Errorf("record contract code: %w", err)
	}
	return ws.SetContractStorage(ctx, address, instance.Storage())
}

func call(ctx context.Context, ws *worldstate.WorldState, tx *chain.Transaction) error {
	name, err := ws.GetContractCode(ctx, tx.Recipient)
	if err != nil {
		return fmt.Errorf("load contract code: %w", err)
	}
	if name == "" {
		return fmt.Errorf("no contract deployed at %s", tx.Recipient)
	}

	ctor, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("unknown contract code %q at %s", name, tx.Recipient)
	}

	stored, err := ws.GetContractStorage(ctx, tx.Recipient)
	if err != nil {
		return fmt.Errorf("load contract storage: %w", err)
	}

	instance := ctor(tx.Recipient, tx.Sender)
	instance.SetStorage(stored)

	method, params, err := parseCallData(tx.Data)
	if err != nil {
		return fmt.Errorf("parse call payload: %w", err)
	}
	if err := instance.Dispatch(method, params); err != nil {
		return fmt.Errorf("dispatch %s.%s: %w", name, method, err)
	}

	return ws.SetContractStorage(ctx, tx.Recipient, instance.Storage())
}

func parseDeployData(data string) (string, map[string]interface{}, error) {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") {
		var payload deployPayload
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return "", nil, err
		}
		if payload.Args == nil {
			payload.Args = map[string]interface{}{}
		}
		return payload.Contract, payload.Args, nil
	}
	return trimmed, map[string]interface{}{}, nil
}

func parseCallData(data string) (string, map[string]interface{}, error) {
	var payload callPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return "", nil, err
	}
	if payload.Params == nil {
		payload.Params = map[string]interface{}{}
	}
	if payload.Method == "" {
		return "", nil, fmt.Errorf("call data missing method")
	}
	return payload.Method, payload.Params, nil
}
