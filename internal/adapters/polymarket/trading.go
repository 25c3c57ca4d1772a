package polymarket

// trading.go: Real order execution via Polymarket CLOB API.
//
// Implements ports.OrderPlacer using AuthClient for L1/L2 auth.
// Orders are GTC limit orders on either side of the book.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// ErrNotConfigured is returned when the client has no wallet or credentials.
// The execution sink treats it as permanent and switches to read-only.
var ErrNotConfigured = domain.ErrNotConfigured

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

const usdcEAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

var balanceOfABI abi.ABI

func init() {
	var err error
	balanceOfABI, err = abi.JSON(strings.NewReader(`[{
		"name":"balanceOf","type":"function",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]
	}]`))
	if err != nil {
		panic("balanceOf abi: " + err.Error())
	}
}

// TradingClient implements ports.OrderPlacer.
// A nil auth client makes every order fail with ErrNotConfigured.
type TradingClient struct {
	auth      *AuthClient
	rpcClient *ethclient.Client

	negRiskMu sync.RWMutex
	negRisk   map[string]bool
}

// NewTradingClient creates a TradingClient. rpcURL is used for on-chain balance checks
// and may be empty, in which case CollateralBalance is unavailable.
func NewTradingClient(auth *AuthClient, rpcURL string) (*TradingClient, error) {
	tc := &TradingClient{auth: auth, negRisk: make(map[string]bool)}
	if rpcURL == "" {
		return tc, nil
	}
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("trading: dial rpc: %w", err)
	}
	tc.rpcClient = rpc
	return tc, nil
}

// PlaceOrder signs and submits a GTC limit order. req.Size is in shares.
func (tc *TradingClient) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error) {
	if tc.auth == nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: no wallet: %w", ErrNotConfigured)
	}
	if !req.Side.Valid() {
		return domain.PlacedOrder{}, fmt.Errorf("place order: invalid side %q", req.Side)
	}
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: creds: %w", err)
	}

	negRisk, err := tc.IsNegRisk(ctx, req.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(req.TokenID, req.Side, req.Price, req.Size, negRisk)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          req.Side.String(),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     tc.auth.creds.APIKey,
		OrderType: "GTC",
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("place order: post: %w", err)
	}

	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{OrderID: resp.OrderID, Status: resp.Status},
			fmt.Errorf("place order: clob error: %s", resp.ErrorMsg)
	}

	return domain.PlacedOrder{
		OrderID: resp.OrderID,
		Status:  resp.Status,
		Success: true,
	}, nil
}

// CollateralBalance returns the on-chain USDC.e balance of the wallet.
func (tc *TradingClient) CollateralBalance(ctx context.Context) (float64, error) {
	if tc.auth == nil || tc.rpcClient == nil {
		return 0, fmt.Errorf("collateral balance: %w", ErrNotConfigured)
	}
	callData, err := balanceOfABI.Pack("balanceOf", tc.auth.address)
	if err != nil {
		return 0, fmt.Errorf("collateral balance: pack: %w", err)
	}

	token := common.HexToAddress(usdcEAddress)
	result, err := tc.rpcClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("collateral balance: rpc call: %w", err)
	}

	vals, err := balanceOfABI.Unpack("balanceOf", result)
	if err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("collateral balance: unpack: %w", err)
	}

	raw, ok := vals[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("collateral balance: unexpected type %T", vals[0])
	}
	return microToUnits(raw), nil
}

// IsNegRisk queries the CLOB to determine if a token uses the NegRisk adapter.
// Answers are cached per token; they never change for a market.
func (tc *TradingClient) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	tc.negRiskMu.RLock()
	v, ok := tc.negRisk[tokenID]
	tc.negRiskMu.RUnlock()
	if ok {
		return v, nil
	}

	u := fmt.Sprintf("%s/neg-risk?token_id=%s", tc.auth.clobBase, url.QueryEscape(tokenID))

	var resp clobNegRiskResponse
	if err := tc.auth.get(ctx, tc.auth.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("neg-risk check: %w", err)
	}

	tc.negRiskMu.Lock()
	tc.negRisk[tokenID] = resp.NegRisk
	tc.negRiskMu.Unlock()
	return resp.NegRisk, nil
}

// Close releases the RPC connection.
func (tc *TradingClient) Close() {
	if tc.rpcClient != nil {
		tc.rpcClient.Close()
	}
}

// microToUnits converts a 6-decimal on-chain amount to units.
func microToUnits(n *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(1e6)).Float64()
	return f
}
