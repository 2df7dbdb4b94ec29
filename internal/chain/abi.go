package chain

import (
	"context"
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal single-method ABI fragments, parsed once at package init — one
// throwaway abi.ABI per probe rather than a full generated binding, since
// the detector and metadata service only ever call one method at a time.
const (
	decimalsABIJSON = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}]`

	nameABIJSON = `[{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	symbolABIJSON = `[{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	granularityABIJSON = `[{"constant":true,"inputs":[],"name":"granularity","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

	supportsInterfaceABIJSON = `[{"constant":true,"inputs":[{"name":"interfaceId","type":"bytes4"}],"name":"supportsInterface","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

	tokenURIABIJSON = `[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

	uriABIJSON = `[{"constant":true,"inputs":[{"name":"id","type":"uint256"}],"name":"uri","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}]`
)

var (
	decimalsABI          ethabi.ABI
	nameABI              ethabi.ABI
	symbolABI            ethabi.ABI
	granularityABI       ethabi.ABI
	supportsInterfaceABI ethabi.ABI
	tokenURIABI          ethabi.ABI
	uriABI               ethabi.ABI
)

func init() {
	decimalsABI = mustParseABI(decimalsABIJSON)
	nameABI = mustParseABI(nameABIJSON)
	symbolABI = mustParseABI(symbolABIJSON)
	granularityABI = mustParseABI(granularityABIJSON)
	supportsInterfaceABI = mustParseABI(supportsInterfaceABIJSON)
	tokenURIABI = mustParseABI(tokenURIABIJSON)
	uriABI = mustParseABI(uriABIJSON)
}

func mustParseABI(j string) ethabi.ABI {
	parsed, err := ethabi.JSON(strings.NewReader(j))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Interface IDs from EIP-165.
var (
	InterfaceID721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceID1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

// Decimals probes ERC-20's decimals().
func (c *Client) Decimals(ctx context.Context, address common.Address) (uint8, error) {
	data, err := decimalsABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return 0, err
	}
	var v uint8
	if err := decimalsABI.UnpackIntoInterface(&v, "decimals", out); err != nil {
		return 0, err
	}
	return v, nil
}

// SupportsInterface probes EIP-165 supportsInterface(bytes4).
func (c *Client) SupportsInterface(ctx context.Context, address common.Address, interfaceID [4]byte) (bool, error) {
	data, err := supportsInterfaceABI.Pack("supportsInterface", interfaceID)
	if err != nil {
		return false, err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return false, err
	}
	var v bool
	if err := supportsInterfaceABI.UnpackIntoInterface(&v, "supportsInterface", out); err != nil {
		return false, err
	}
	return v, nil
}

// Granularity probes ERC-777's granularity().
func (c *Client) Granularity(ctx context.Context, address common.Address) (*big.Int, error) {
	data, err := granularityABI.Pack("granularity")
	if err != nil {
		return nil, err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return nil, err
	}
	v := new(big.Int)
	if err := granularityABI.UnpackIntoInterface(&v, "granularity", out); err != nil {
		return nil, err
	}
	return v, nil
}

// Name fetches ERC-20/721/777's optional name().
func (c *Client) Name(ctx context.Context, address common.Address) (string, error) {
	data, err := nameABI.Pack("name")
	if err != nil {
		return "", err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return "", err
	}
	var v string
	if err := nameABI.UnpackIntoInterface(&v, "name", out); err != nil {
		return "", err
	}
	return v, nil
}

// Symbol fetches ERC-20/721/777's optional symbol().
func (c *Client) Symbol(ctx context.Context, address common.Address) (string, error) {
	data, err := symbolABI.Pack("symbol")
	if err != nil {
		return "", err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return "", err
	}
	var v string
	if err := symbolABI.UnpackIntoInterface(&v, "symbol", out); err != nil {
		return "", err
	}
	return v, nil
}

// TokenURI fetches ERC-721's tokenURI(uint256).
func (c *Client) TokenURI(ctx context.Context, address common.Address, tokenID *big.Int) (string, error) {
	data, err := tokenURIABI.Pack("tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return "", err
	}
	var v string
	if err := tokenURIABI.UnpackIntoInterface(&v, "tokenURI", out); err != nil {
		return "", err
	}
	return v, nil
}

// URI fetches ERC-1155's uri(uint256).
func (c *Client) URI(ctx context.Context, address common.Address, id *big.Int) (string, error) {
	data, err := uriABI.Pack("uri", id)
	if err != nil {
		return "", err
	}
	out, err := c.Call(ctx, address, data)
	if err != nil {
		return "", err
	}
	var v string
	if err := uriABI.UnpackIntoInterface(&v, "uri", out); err != nil {
		return "", err
	}
	return v, nil
}
