package chainobserver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// shieldEventSignature is the keccak256 topic of the privacy protocol's
// Shield event: Shield(bytes32 indexed commitmentHash, bytes32
// blindedCommitment). Declared as a var, not a const, because
// crypto.Keccak256Hash is not a compile-time constant expression.
var shieldEventSignature = crypto.Keccak256Hash([]byte("Shield(bytes32,bytes32)"))

// maxBlockRangePerScan caps how many blocks a single FilterLogs call spans,
// mirroring the rest of the pack's practice of chunking log scans so a
// long-idle poller catching up doesn't overwhelm the RPC node in one shot.
const maxBlockRangePerScan = 5000

// NetworkEndpoints resolves a network identifier to its RPC endpoint and
// the on-chain address that emits Shield events on that network.
type NetworkEndpoints interface {
	RPCURL(network string) (string, error)
	ShieldContractAddress(network string) (common.Address, error)
}

// EVMObserver implements Observer (C6) against an EVM-compatible chain via
// go-ethereum's ethclient, the way the rest of the retrieved pack (the
// snapshot validator's event monitor) watches a contract's logs.
type EVMObserver struct {
	endpoints NetworkEndpoints
	clients   map[string]*ethclient.Client
}

func NewEVMObserver(endpoints NetworkEndpoints) *EVMObserver {
	return &EVMObserver{
		endpoints: endpoints,
		clients:   map[string]*ethclient.Client{},
	}
}

func (o *EVMObserver) clientFor(network string) (*ethclient.Client, error) {
	if c, ok := o.clients[network]; ok {
		return c, nil
	}
	url, err := o.endpoints.RPCURL(network)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: resolve rpc url for %s: %w", network, err)
	}
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: dial %s: %w", network, err)
	}
	o.clients[network] = client
	return client, nil
}

func (o *EVMObserver) GetNewShields(ctx context.Context, network string, fromBlock uint64) ([]*Shield, error) {
	client, err := o.clientFor(network)
	if err != nil {
		return nil, err
	}
	contractAddr, err := o.endpoints.ShieldContractAddress(network)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: resolve shield contract for %s: %w", network, err)
	}

	latest, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: get latest block for %s: %w", network, err)
	}
	if fromBlock > latest {
		return nil, nil
	}

	// Windows with no shield logs are skipped, so an empty result only
	// comes back once every block up to latest has been scanned.
	for start := fromBlock; start <= latest; start += maxBlockRangePerScan + 1 {
		toBlock := start + maxBlockRangePerScan
		if toBlock > latest {
			toBlock = latest
		}

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{contractAddr},
			Topics:    [][]common.Hash{{shieldEventSignature}},
		}

		logs, err := client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("chainobserver: filter shield logs on %s: %w", network, err)
		}
		if len(logs) == 0 {
			continue
		}

		shields := make([]*Shield, 0, len(logs))
		for _, l := range logs {
			shield, err := o.parseShieldLog(ctx, client, l)
			if err != nil {
				return nil, fmt.Errorf("chainobserver: parse shield log %s: %w", l.TxHash.Hex(), err)
			}
			shields = append(shields, shield)
		}
		return shields, nil
	}
	return nil, nil
}

// parseShieldLog decodes one Shield event log. commitmentHash and
// blindedCommitment are both indexed/data fields of 32 bytes; the header
// lookup resolves the block's mining timestamp.
func (o *EVMObserver) parseShieldLog(ctx context.Context, client *ethclient.Client, l types.Log) (*Shield, error) {
	if len(l.Topics) < 2 || len(l.Data) < 32 {
		return nil, fmt.Errorf("malformed shield log, want 2 topics and 32 bytes of data")
	}
	commitmentHash := l.Topics[1]
	blindedCommitment := common.BytesToHash(l.Data[:32])

	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
	if err != nil {
		return nil, fmt.Errorf("header for block %d: %w", l.BlockNumber, err)
	}

	return &Shield{
		TxID:              l.TxHash.Hex(),
		Hash:              commitmentHash.Hex(),
		BlindedCommitment: blindedCommitment.Hex(),
		Timestamp:         int64(header.Time) * 1000,
		BlockNumber:       l.BlockNumber,
	}, nil
}

func (o *EVMObserver) GetReceipt(ctx context.Context, network string, txID string) (*Receipt, error) {
	client, err := o.clientFor(network)
	if err != nil {
		return nil, err
	}

	hash := common.HexToHash(txID)
	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: get receipt for %s on %s: %w", txID, network, err)
	}

	tx, _, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: get transaction for %s on %s: %w", txID, network, err)
	}
	from, err := client.TransactionSender(ctx, tx, receipt.BlockHash, receipt.TransactionIndex)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: recover sender for %s on %s: %w", txID, network, err)
	}

	header, err := client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("chainobserver: header for block %s on %s: %w", receipt.BlockNumber, network, err)
	}

	return &Receipt{
		TxID:        txID,
		From:        from.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Timestamp:   int64(header.Time) * 1000,
	}, nil
}
