// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ardanlabs/blocknode/business/web/errs"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ardanlabs/blocknode/foundation/events"
	"github.com/ardanlabs/blocknode/foundation/validate"
	"github.com/ardanlabs/blocknode/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// defaultChainLimit is how many entries the chain endpoint returns when no
// limit is provided.
const defaultChainLimit = 20

// Handlers manages the set of node query endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Net   *p2p.Node
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer func() {
		dropped, err := h.Evts.Release(v.TraceID)
		if err != nil {
			return
		}
		h.Log.Infow("events viewer closed", "traceid", v.TraceID, "dropped", dropped)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return nil
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns a summary of the node's view of the chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	st := h.State.Status()

	resp := status{
		Tip:              st.Tip,
		Height:           st.Height,
		WorkSum:          st.WorkSum,
		Blocks:           st.Blocks,
		Orphans:          st.Orphans,
		StoredBlocks:     st.StoredBlocks,
		MiningDifficulty: st.MiningDifficulty,
		Peers:            len(h.Net.Peers()),
		Listen:           h.Net.Addr(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Block returns the indexed block for the specified hash.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := parseHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	info, err := h.State.QueryBlock(hash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errs.NewNotFound("block %s not found", hash)
		}
		return fmt.Errorf("query block[%s]: %w", hash, err)
	}

	resp := block{
		BlockData:  database.NewBlockData(info.Block),
		WorkSum:    info.Entry.WorkSum,
		StorageKey: info.Entry.StorageKey,
		OnTipChain: info.OnTipChain,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Chain returns the entries from the tip back toward genesis.
func (h Handlers) Chain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	limit, err := web.QueryUint(r, "limit", defaultChainLimit)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	q := chainQuery{Limit: limit}
	if err := validate.Check(q); err != nil {
		return err
	}

	entries := h.State.QueryChain(int(q.Limit))

	resp := make([]entry, len(entries))
	for i, e := range entries {
		resp[i] = toEntry(e)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Orphans returns the blocks waiting on a parent.
func (h Handlers) Orphans(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	orphans := h.State.RetrieveOrphans()

	resp := make([]database.BlockData, len(orphans))
	for i, b := range orphans {
		resp[i] = database.NewBlockData(b)
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Peers returns the connected peers.
func (h Handlers) Peers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	peers := h.Net.Peers()

	resp := make([]peerInfo, len(peers))
	for i, p := range peers {
		resp[i] = peerInfo{
			Addr:      p.Addr,
			Inbound:   p.Inbound,
			Connected: p.Connected,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ConnectPeer asks the node to open a connection to the specified peer.
func (h Handlers) ConnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var np NewPeer
	if err := web.Decode(r, &np); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewBadRequest("unable to decode payload: %s", err)
	}

	h.Log.Infow("connect peer", "traceid", v.TraceID, "addr", np.Addr)

	if err := h.Net.Connect(np.Addr); err != nil {
		return errs.NewTrusted(fmt.Errorf("connect %s: %w", np.Addr, err), http.StatusBadGateway)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "connected",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// parseHash accepts only a full 0x prefixed 32 byte hex hash.
func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q: length %d", s, len(b))
	}

	return common.BytesToHash(b), nil
}
