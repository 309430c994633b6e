package blockchain

import (
	"context"
	"time"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

// PoolCreation is what a pool creation transaction tells us about the new pool.
type PoolCreation struct {
	Creator string
	Base    models.AssetInfo
	Quote   models.AssetInfo
}

// ExtractPoolCreation reads the creator and both pool sides from a parsed transaction.
// The base side is the first post-token balance owned by the pool owner whose mint is not
// the reference mint; the quote side is the first one whose mint is. Returns nil when the
// transaction failed or either side is missing.
func ExtractPoolCreation(tx *models.ParsedTransaction, poolOwner, referenceMint string) *PoolCreation {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		return nil
	}

	pc := &PoolCreation{}
	if len(tx.Message.AccountKeys) > 0 {
		pc.Creator = tx.Message.AccountKeys[0].Pubkey
	}

	var haveBase, haveQuote bool
	for _, balance := range tx.Meta.PostTokenBalances {
		if balance.Owner != poolOwner {
			continue
		}
		if balance.Mint != referenceMint && !haveBase {
			pc.Base = assetFromBalance(balance)
			haveBase = true
		}
		if balance.Mint == referenceMint && !haveQuote {
			pc.Quote = assetFromBalance(balance)
			haveQuote = true
		}
	}

	if !haveBase || !haveQuote || pc.Base.Address == "" {
		return nil
	}
	return pc
}

func assetFromBalance(balance models.TokenBalance) models.AssetInfo {
	amount := 0.0
	if balance.UITokenAmount.UIAmount != nil {
		amount = *balance.UITokenAmount.UIAmount
	}
	return models.AssetInfo{
		Address:         balance.Mint,
		Decimals:        balance.UITokenAmount.Decimals,
		LiquidityAmount: amount,
	}
}

// Parser turns log notifications into token records.
type Parser struct {
	source        models.BlockchainService
	poolOwner     string
	referenceMint string
	logger        *logger.Logger
	now           func() time.Time
}

func NewParser(source models.BlockchainService, poolOwner, referenceMint string, logger *logger.Logger) *Parser {
	return &Parser{
		source:        source,
		poolOwner:     poolOwner,
		referenceMint: referenceMint,
		logger:        logger,
		now:           time.Now,
	}
}

// Parse fetches the transaction behind a notification and builds a record from it.
// A nil record with nil error means the transaction is not a usable pool creation;
// an error is returned only when the ledger could not be queried.
func (p *Parser) Parse(ctx context.Context, signature string, logs []string) (*models.TokenRecord, error) {
	tx, err := p.source.GetParsedTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}

	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		p.logger.Debug("transaction not parseable", "signature", signature)
		return nil, nil
	}

	pc := ExtractPoolCreation(tx, p.poolOwner, p.referenceMint)
	if pc == nil {
		p.logger.Debug("incomplete token data", "signature", signature)
		return nil, nil
	}

	return &models.TokenRecord{
		Signature:   signature,
		Creator:     pc.Creator,
		DetectedAt:  p.now().UTC(),
		BaseAsset:   pc.Base,
		QuoteAsset:  pc.Quote,
		RawLogLines: logs,
	}, nil
}
