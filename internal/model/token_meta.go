package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TokenKind is the token standard of a contract.
type TokenKind string

const (
	TokenERC20  TokenKind = "erc20"
	TokenERC721 TokenKind = "erc721"
)

// TokenMeta captures token metadata.
type TokenMeta struct {
	Address  string    `json:"address"`
	ChainID  ChainID   `json:"chain_id"`
	Kind     TokenKind `json:"kind"`
	Decimals uint8     `json:"decimals"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
}

// AssetID returns the CAIP-19 style identifier, e.g. eip155:1/erc20:0x...
func (t TokenMeta) AssetID() string {
	kind := t.Kind
	if kind == "" {
		kind = TokenERC20
	}
	return fmt.Sprintf("eip155:%d/%s:%s", t.ChainID, kind, common.HexToAddress(t.Address).Hex())
}

// NFTAssetID appends the token id to the collection identifier.
func (t TokenMeta) NFTAssetID(tokenID *big.Int) string {
	return t.AssetID() + "/" + tokenID.String()
}

// DisplaySymbol falls back to a short address when symbol lookup failed.
func (t TokenMeta) DisplaySymbol() string {
	if strings.TrimSpace(t.Symbol) != "" {
		return t.Symbol
	}
	addr := common.HexToAddress(t.Address).Hex()
	return addr[:8]
}

// Normalize converts a raw integer amount to token units.
func (t TokenMeta) Normalize(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}
