// Package broadcast implements the node's best-effort flooding transport:
// every outbound message is fired at every known peer, with no
// acknowledgement, retry, or ordering guarantee. Grounded on
// internal/gossip's libp2p host/stream plumbing, stripped of its epidemic
// fanout, anti-entropy, and CRDT-merge machinery — this system has no
// shared mutable gossip state to converge, only transactions and consensus
// messages to flood (spec.md §4.4).
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

const floodProtocol = protocol.ID("/coldchain/flood/1.0.0")

// Dispatcher routes an inbound (endpoint, payload) pair to the node's core
// logic. Implemented by *node.Node.
type Dispatcher interface {
	InboundTx(ctx context.Context, payload []byte) error
	InboundConsensus(ctx context.Context, payload []byte) error
}

// envelope is the wire frame carried over every stream: a logical endpoint
// name plus an opaque payload, letting one libp2p protocol multiplex the
// handful of message kinds the node sends.
type envelope struct {
	Endpoint string          `json:"endpoint"`
	Payload  json.RawMessage `json:"payload"`
}

// FloodTransport is a libp2p-backed Broadcaster: Broadcast fans a message
// out to every known peer via independent, fire-and-forget goroutines.
// Duplicate delivery, reordering, and dropped peers are all expected and
// tolerated by the consensus and mempool layers above it.
type FloodTransport struct {
	host host.Host

	peersMu sync.RWMutex
	peers   map[peer.ID]struct{}

	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewFloodTransport starts a libp2p host listening on listenAddr and wires
// its single stream handler to dispatcher.
func NewFloodTransport(listenAddr string, dispatcher Dispatcher, logger *zap.Logger) (*FloodTransport, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("broadcast: create libp2p host: %w", err)
	}

	ft := &FloodTransport{
		host:       h,
		peers:      make(map[peer.ID]struct{}),
		dispatcher: dispatcher,
		logger:     logger,
	}
	h.SetStreamHandler(floodProtocol, ft.handleStream)

	logger.Info("flood transport started", zap.String("peerID", h.ID().String()), zap.String("listen", listenAddr))
	return ft, nil
}

// AddPeer connects to and registers a peer given as a libp2p multiaddr
// (e.g. "/ip4/10.0.0.2/tcp/4001/p2p/Qm...").
func (ft *FloodTransport) AddPeer(peerAddr string) error {
	addr, err := multiaddr.NewMultiaddr(peerAddr)
	if err != nil {
		return fmt.Errorf("broadcast: invalid peer address %q: %w", peerAddr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("broadcast: parse peer info: %w", err)
	}
	if err := ft.host.Connect(context.Background(), *info); err != nil {
		return fmt.Errorf("broadcast: connect to peer %s: %w", info.ID, err)
	}

	ft.peersMu.Lock()
	ft.peers[info.ID] = struct{}{}
	ft.peersMu.Unlock()

	ft.logger.Info("added peer", zap.String("peer", info.ID.String()))
	return nil
}

// Broadcast fans payload out to every known peer at endpoint. It returns
// nil once the sends have been dispatched; individual peer failures are
// logged, never returned, since a flood is best-effort by design.
func (ft *FloodTransport) Broadcast(ctx context.Context, endpoint string, payload []byte) error {
	data, err := json.Marshal(envelope{Endpoint: endpoint, Payload: payload})
	if err != nil {
		return fmt.Errorf("broadcast: marshal envelope: %w", err)
	}

	ft.peersMu.RLock()
	targets := make([]peer.ID, 0, len(ft.peers))
	for p := range ft.peers {
		targets = append(targets, p)
	}
	ft.peersMu.RUnlock()

	for _, p := range targets {
		go ft.sendTo(ctx, p, data)
	}
	return nil
}

func (ft *FloodTransport) sendTo(ctx context.Context, p peer.ID, data []byte) {
	s, err := ft.host.NewStream(ctx, p, floodProtocol)
	if err != nil {
		ft.logger.Warn("flood: open stream failed", zap.String("peer", p.String()), zap.Error(err))
		return
	}
	defer s.Close()

	if _, err := s.Write(data); err != nil {
		ft.logger.Warn("flood: write failed", zap.String("peer", p.String()), zap.Error(err))
	}
}

func (ft *FloodTransport) handleStream(s network.Stream) {
	defer s.Close()

	data, err := io.ReadAll(s)
	if err != nil {
		ft.logger.Warn("flood: read failed", zap.Error(err))
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ft.logger.Warn("flood: malformed envelope", zap.Error(err))
		return
	}

	ctx := context.Background()
	var dispatchErr error
	switch env.Endpoint {
	case "/gossip/tx":
		dispatchErr = ft.dispatcher.InboundTx(ctx, env.Payload)
	case "/gossip/consensus":
		dispatchErr = ft.dispatcher.InboundConsensus(ctx, env.Payload)
	default:
		ft.logger.Warn("flood: unknown endpoint", zap.String("endpoint", env.Endpoint))
		return
	}
	if dispatchErr != nil {
		ft.logger.Warn("flood: dispatch failed", zap.String("endpoint", env.Endpoint), zap.Error(dispatchErr))
	}
}

// Close shuts down the underlying libp2p host.
func (ft *FloodTransport) Close() error {
	return ft.host.Close()
}
