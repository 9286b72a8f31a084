// Package api exposes the node's read-only query surface and transaction
// submission endpoint over HTTP, grounded on the teacher's
// internal/api/server.go routing and handler shape. Per spec.md §6 this is
// a thin, explicitly-out-of-scope carrier: every handler here delegates to
// internal/node, which owns the actual consensus/chain/mempool state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/coldchain/ledger/internal/cas"
	"github.com/coldchain/ledger/internal/chain"
	"github.com/coldchain/ledger/internal/mempool"
	"github.com/coldchain/ledger/internal/node"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server is the node's HTTP query and submission surface.
type Server struct {
	node       *node.Node
	cas        *cas.CAS
	logger     *zap.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds a Server wired to n. cas may be nil, in which case the
// evidence-attachment endpoints respond 503.
func NewServer(n *node.Node, objectStore *cas.CAS, logger *zap.Logger) *Server {
	srv := &Server{
		node:   n,
		cas:    objectStore,
		logger: logger,
		router: mux.NewRouter(),
	}
	srv.routes()
	return srv
}

// Handler returns the server's routed http.Handler, for embedding in an
// httptest.Server or another outer mux without binding a port.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.logger.Info("API server starting", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	s.router.HandleFunc("/blocks/head", s.handleGetHead).Methods("GET")
	s.router.HandleFunc("/blocks/height/{height:[0-9]+}", s.handleGetBlockByHeight).Methods("GET")
	s.router.HandleFunc("/blocks/hash/{hash}", s.handleGetBlockByHash).Methods("GET")

	s.router.HandleFunc("/txs", s.handleSubmitTx).Methods("POST")
	s.router.HandleFunc("/mempool", s.handleGetMempool).Methods("GET")

	s.router.HandleFunc("/contracts/{address}/storage", s.handleGetContractStorage).Methods("GET")
	s.router.HandleFunc("/contracts/by-name/{name}", s.handleFindContractByName).Methods("GET")

	s.router.HandleFunc("/cas/objects", s.handleStoreObject).Methods("POST")
	s.router.HandleFunc("/cas/objects/{cid}", s.handleGetObject).Methods("GET")
	s.router.HandleFunc("/cas/objects/{cid}", s.handleDeleteObject).Methods("DELETE")
	s.router.HandleFunc("/cas/objects", s.handleListObjects).Methods("GET")

	s.router.HandleFunc("/node/info", s.handleNodeInfo).Methods("GET")
	s.router.HandleFunc("/node/mine", s.handleMine).Methods("POST")
}

func (s *Server) respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response failed", zap.Error(err))
	}
}

func (s *Server) error(w http.ResponseWriter, err error, status int) {
	s.respond(w, map[string]string{"error": err.Error()}, status)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respond(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

func (s *Server) respondBlock(w http.ResponseWriter, block *chain.Block, err error) {
	if err != nil {
		s.error(w, fmt.Errorf("load block: %w", err), http.StatusInternalServerError)
		return
	}
	if block == nil {
		s.error(w, fmt.Errorf("block not found"), http.StatusNotFound)
		return
	}
	s.respond(w, block, http.StatusOK)
}

func (s *Server) handleGetHead(w http.ResponseWriter, r *http.Request) {
	block, err := s.node.GetHeadBlock(r.Context())
	s.respondBlock(w, block, err)
}

func (s *Server) handleGetBlockByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}
	block, err := s.node.GetBlockByHeight(r.Context(), height)
	s.respondBlock(w, block, err)
}

func (s *Server) handleGetBlockByHash(w http.ResponseWriter, r *http.Request) {
	block, err := s.node.GetBlockByHash(r.Context(), mux.Vars(r)["hash"])
	s.respondBlock(w, block, err)
}

// handleSubmitTx admits a fully-formed, already-signed transaction dict
// (spec.md §6's "transaction dict") into the mempool.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		s.error(w, fmt.Errorf("decode transaction: %w", err), http.StatusBadRequest)
		return
	}

	result := s.node.SubmitTx(r.Context(), &tx)
	status := http.StatusOK
	switch result {
	case mempool.Accepted:
		status = http.StatusCreated
	case mempool.Duplicate:
		status = http.StatusConflict
	case mempool.InvalidSignature:
		status = http.StatusBadRequest
	}

	s.respond(w, map[string]interface{}{
		"hash":   tx.Hash,
		"result": result.String(),
	}, status)
}

func (s *Server) handleGetMempool(w http.ResponseWriter, r *http.Request) {
	txs := s.node.Mempool()
	s.respond(w, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	}, http.StatusOK)
}

func (s *Server) handleGetContractStorage(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	storage, err := s.node.GetContractStorage(r.Context(), address)
	if err != nil {
		s.error(w, fmt.Errorf("load contract storage: %w", err), http.StatusInternalServerError)
		return
	}
	s.respond(w, storage, http.StatusOK)
}

func (s *Server) handleFindContractByName(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	address, found, err := s.node.FindContractAddressByName(r.Context(), name)
	if err != nil {
		s.error(w, fmt.Errorf("find contract: %w", err), http.StatusInternalServerError)
		return
	}
	if !found {
		s.error(w, fmt.Errorf("no contract named %q is deployed", name), http.StatusNotFound)
		return
	}
	s.respond(w, map[string]string{"name": name, "address": address}, http.StatusOK)
}

// handleMine triggers the primary to propose a block from the current
// mempool; a no-op diagnostic convenience, not part of spec.md's core.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if err := s.node.Mine(r.Context()); err != nil {
		s.error(w, err, http.StatusConflict)
		return
	}
	s.respond(w, map[string]string{"status": "proposed"}, http.StatusOK)
}

func (s *Server) requireCAS(w http.ResponseWriter) bool {
	if s.cas != nil {
		return true
	}
	s.error(w, fmt.Errorf("evidence attachment storage is not configured"), http.StatusServiceUnavailable)
	return false
}

// handleStoreObject uploads a shipment-evidence blob (a temperature-log
// export, a customs document) and returns its content ID, for callers to
// pass as a PharmaContract record_temperature evidence_cid parameter.
func (s *Server) handleStoreObject(w http.ResponseWriter, r *http.Request) {
	if !s.requireCAS(w) {
		return
	}
	metadata := make(map[string]string)
	for key, values := range r.Header {
		if len(values) > 0 && key != "Content-Type" {
			metadata[key] = values[0]
		}
	}

	info, err := s.cas.Store(r.Context(), r.Body, metadata)
	if err != nil {
		s.error(w, fmt.Errorf("store object: %w", err), http.StatusInternalServerError)
		return
	}

	s.respond(w, map[string]interface{}{
		"cid":         info.CID,
		"size":        info.Size,
		"chunks":      len(info.Chunks),
		"merkle_root": info.MerkleRoot,
		"uploaded":    info.Uploaded.Format(time.RFC3339),
	}, http.StatusCreated)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	if !s.requireCAS(w) {
		return
	}
	cid := mux.Vars(r)["cid"]

	reader, err := s.cas.Retrieve(r.Context(), cid)
	if err != nil {
		s.error(w, fmt.Errorf("retrieve object: %w", err), http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Content-ID", cid)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("stream object failed", zap.String("cid", cid), zap.Error(err))
	}
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	if !s.requireCAS(w) {
		return
	}
	cid := mux.Vars(r)["cid"]
	if err := s.cas.Delete(r.Context(), cid); err != nil {
		s.error(w, fmt.Errorf("delete object: %w", err), http.StatusInternalServerError)
		return
	}
	s.respond(w, map[string]string{"message": "object deleted"}, http.StatusOK)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	if !s.requireCAS(w) {
		return
	}
	prefix := r.URL.Query().Get("prefix")
	objects, err := s.cas.List(r.Context(), prefix)
	if err != nil {
		s.error(w, fmt.Errorf("list objects: %w", err), http.StatusInternalServerError)
		return
	}
	s.respond(w, map[string]interface{}{
		"objects": objects,
		"count":   len(objects),
	}, http.StatusOK)
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	halted, reason := s.node.Halted()
	info := map[string]interface{}{
		"consensus_phase": s.node.ConsensusPhase(),
		"halted":          halted,
	}
	if halted {
		info["halted_reason"] = reason
	}
	s.respond(w, info, http.StatusOK)
}
