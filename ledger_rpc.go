package chainlinks

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/xerrors"
)

//go:embed abi/URLShortener.json
var urlShortenerABI string

// RPCLedger reads the URL shortener contract through an Ethereum JSON-RPC endpoint.
type RPCLedger struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
}

var _ Ledger = &RPCLedger{}

// NewRPCLedger validates the endpoint and contract address and prepares a
// client. Missing or malformed settings are reported as ErrConfiguration
// before anything is dialed.
func NewRPCLedger(ctx context.Context, rpcURL, contractAddress string) (*RPCLedger, error) {
	if rpcURL == "" {
		return nil, xerrors.Errorf("RPC URL not set: %w", ErrConfiguration)
	}
	if contractAddress == "" {
		return nil, xerrors.Errorf("contract address not set: %w", ErrConfiguration)
	}
	if !common.IsHexAddress(contractAddress) {
		return nil, xerrors.Errorf("contract address %q is not a hex address: %w", contractAddress, ErrConfiguration)
	}

	parsed, err := abi.JSON(strings.NewReader(urlShortenerABI))
	if err != nil {
		return nil, xerrors.Errorf("could not parse contract ABI: %w", err)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Errorf("could not dial %s: %w", rpcURL, err)
	}

	return &RPCLedger{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		abi:      parsed,
	}, nil
}

// Close shuts down the RPC client.
func (l *RPCLedger) Close() {
	l.client.Close()
}

// GetURL calls the contract's getURL view function at the latest block.
func (l *RPCLedger) GetURL(ctx context.Context, shortCode string) (string, error) {
	data, err := l.abi.Pack("getURL", shortCode)
	if err != nil {
		return "", xerrors.Errorf("encoding getURL call: %w", err)
	}

	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil)
	if err != nil {
		return "", xerrors.Errorf("calling getURL on %s: %w", l.contract.Hex(), err)
	}

	values, err := l.abi.Unpack("getURL", out)
	if err != nil {
		return "", xerrors.Errorf("decoding getURL result: %w", err)
	}
	if len(values) != 1 {
		return "", xerrors.Errorf("getURL returned %d values, expected 1", len(values))
	}
	longURL, ok := values[0].(string)
	if !ok {
		return "", xerrors.Errorf("getURL returned %T, expected string", values[0])
	}

	return longURL, nil
}

// KeyWallet signs setURL transactions with a locally held private key.
type KeyWallet struct {
	ledger *RPCLedger
	key    *ecdsa.PrivateKey
}

var _ Wallet = &KeyWallet{}

// NewKeyWallet returns a wallet signing with the hex-encoded secp256k1 key hexKey.
func NewKeyWallet(l *RPCLedger, hexKey string) (*KeyWallet, error) {
	if hexKey == "" {
		return nil, xerrors.Errorf("private key not set: %w", ErrConfiguration)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, xerrors.Errorf("invalid private key: %w", err)
	}
	return &KeyWallet{ledger: l, key: key}, nil
}

// Connect derives the signing address and asks the endpoint which chain it serves.
func (w *KeyWallet) Connect(ctx context.Context) (Account, error) {
	chainID, err := w.ledger.client.ChainID(ctx)
	if err != nil {
		return Account{}, xerrors.Errorf("querying chain ID: %w", err)
	}
	return Account{
		Address: crypto.PubkeyToAddress(w.key.PublicKey).Hex(),
		ChainID: chainID.Int64(),
	}, nil
}

// SetURL sends a setURL transaction and waits until it is mined.
func (w *KeyWallet) SetURL(ctx context.Context, from Account, shortCode, longURL string) (Receipt, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, big.NewInt(from.ChainID))
	if err != nil {
		return Receipt{}, xerrors.Errorf("creating transactor: %w", err)
	}
	opts.Context = ctx

	c := w.ledger.client
	contract := bind.NewBoundContract(w.ledger.contract, w.ledger.abi, c, c, c)

	tx, err := contract.Transact(opts, "setURL", shortCode, longURL)
	if err != nil {
		return Receipt{}, xerrors.Errorf("sending setURL transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c, tx)
	if err != nil {
		return Receipt{}, xerrors.Errorf("waiting for transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Receipt{}, xerrors.Errorf("transaction %s reverted in block %s", tx.Hash().Hex(), receipt.BlockNumber)
	}

	return Receipt{TxHash: tx.Hash().Hex(), BlockNumber: receipt.BlockNumber.Uint64()}, nil
}
