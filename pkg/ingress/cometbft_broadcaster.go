// Copyright 2025 Certen Protocol
//
// CometBFT-backed Broadcaster, wrapping rpc/client/http.HTTP for
// BroadcastTxSync calls.

package ingress

import (
	"context"

	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	cmttypes "github.com/cometbft/cometbft/types"
)

// CometBFTBroadcaster submits transactions to a local CometBFT node's
// mempool over its RPC HTTP endpoint.
type CometBFTBroadcaster struct {
	client *cmthttp.HTTP
}

// NewCometBFTBroadcaster dials the node's RPC endpoint (e.g.
// "tcp://127.0.0.1:26657").
func NewCometBFTBroadcaster(rpcAddr string) (*CometBFTBroadcaster, error) {
	client, err := cmthttp.New(rpcAddr, "/websocket")
	if err != nil {
		return nil, err
	}
	return &CometBFTBroadcaster{client: client}, nil
}

// BroadcastTxSync implements Broadcaster.
func (b *CometBFTBroadcaster) BroadcastTxSync(ctx context.Context, tx []byte) ([]byte, uint32, string, error) {
	res, err := b.client.BroadcastTxSync(ctx, cmttypes.Tx(tx))
	if err != nil {
		return nil, 0, "", err
	}
	return res.Hash, res.Code, res.Log, nil
}
