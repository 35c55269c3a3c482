package chainobserver

import (
	"context"
	"fmt"

	"github.com/poi-list/provider/entities"
	"github.com/poi-list/provider/utils"
)

// JSONRPCEndpoints resolves a network identifier to the URL of a plain
// JSON-RPC node, for networks that expose shield data over a bespoke RPC
// surface rather than a full EVM client library.
type JSONRPCEndpoints interface {
	RPCURL(network string) (string, error)
}

// rpcShield is the wire shape of one element of poi_getNewShields's result.
type rpcShield struct {
	TxID              string `json:"txid"`
	Hash              string `json:"hash"`
	BlindedCommitment string `json:"blindedCommitment"`
	Timestamp         int64  `json:"timestamp"`
	BlockNumber       uint64 `json:"blockNumber"`
}

type getNewShieldsResponse struct {
	entities.RPCBaseRes
	Result []rpcShield `json:"result"`
}

// rpcReceipt is the wire shape of poi_getReceipt's result.
type rpcReceipt struct {
	From        string `json:"from"`
	BlockNumber uint64 `json:"blockNumber"`
	Timestamp   int64  `json:"timestamp"`
}

type getReceiptResponse struct {
	entities.RPCBaseRes
	Result rpcReceipt `json:"result"`
}

// JSONRPCObserver implements Observer (C6) against a node that exposes
// poi_getNewShields/poi_getReceipt over plain JSON-RPC, the way the rest of
// this codebase's lineage talks to a chain node it doesn't have a client
// library for: one shared utils.HttpClient per network, dialed lazily.
type JSONRPCObserver struct {
	endpoints JSONRPCEndpoints
	clients   map[string]*utils.HttpClient
}

func NewJSONRPCObserver(endpoints JSONRPCEndpoints) *JSONRPCObserver {
	return &JSONRPCObserver{
		endpoints: endpoints,
		clients:   map[string]*utils.HttpClient{},
	}
}

func (o *JSONRPCObserver) clientFor(network string) (*utils.HttpClient, error) {
	if c, ok := o.clients[network]; ok {
		return c, nil
	}
	url, err := o.endpoints.RPCURL(network)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: resolve rpc url for %s: %w", network, err)
	}
	client := utils.NewHttpClient(url)
	o.clients[network] = client
	return client, nil
}

func (o *JSONRPCObserver) GetNewShields(ctx context.Context, network string, fromBlock uint64) ([]*Shield, error) {
	client, err := o.clientFor(network)
	if err != nil {
		return nil, err
	}

	var resp getNewShieldsResponse
	if err := client.RPCCall(ctx, "poi_getNewShields", []interface{}{fromBlock}, &resp); err != nil {
		return nil, fmt.Errorf("chainobserver: poi_getNewShields on %s: %w", network, err)
	}
	if resp.RPCError != nil {
		return nil, fmt.Errorf("chainobserver: poi_getNewShields on %s: %s", network, resp.RPCError.Message)
	}

	shields := make([]*Shield, 0, len(resp.Result))
	for _, s := range resp.Result {
		shields = append(shields, &Shield{
			TxID:              s.TxID,
			Hash:              s.Hash,
			BlindedCommitment: s.BlindedCommitment,
			Timestamp:         s.Timestamp,
			BlockNumber:       s.BlockNumber,
		})
	}
	return shields, nil
}

func (o *JSONRPCObserver) GetReceipt(ctx context.Context, network string, txID string) (*Receipt, error) {
	client, err := o.clientFor(network)
	if err != nil {
		return nil, err
	}

	var resp getReceiptResponse
	if err := client.RPCCall(ctx, "poi_getReceipt", []interface{}{txID}, &resp); err != nil {
		return nil, fmt.Errorf("chainobserver: poi_getReceipt for %s on %s: %w", txID, network, err)
	}
	if resp.RPCError != nil {
		return nil, fmt.Errorf("chainobserver: poi_getReceipt for %s on %s: %s", txID, network, resp.RPCError.Message)
	}

	return &Receipt{
		TxID:        txID,
		From:        resp.Result.From,
		BlockNumber: resp.Result.BlockNumber,
		Timestamp:   resp.Result.Timestamp,
	}, nil
}
