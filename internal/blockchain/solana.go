package blockchain

import (
	"context"
	"fmt"
	"time"

	"github.com/rayscout/rayscout/internal/config"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

// Solana is the ledger source: HTTP JSON-RPC for lookups, websocket for log streams.
type Solana struct {
	logger *logger.Logger
	config *config.Config
	rpc    *RPCClient
	ws     *WSClient
}

// NewSolana creates a new Solana instance. Nothing is dialed until first use.
func NewSolana(logger *logger.Logger, config *config.Config) *Solana {
	return &Solana{
		logger: logger,
		config: config,
		rpc:    NewRPCClient(config.RPCEndpoint),
		ws:     NewWSClient(config.RPCWebsocketEndpoint, nil, logger),
	}
}

// Run checks the RPC endpoint so misconfiguration surfaces at startup.
func (s *Solana) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slot, err := s.rpc.GetSlot(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to the solana RPC server: %w", err)
	}
	s.logger.Info("connected to solana RPC", "slot", slot)
	return nil
}

func (s *Solana) SubscribeLogs(ctx context.Context, mention string) (<-chan models.LogNotification, error) {
	ch, err := s.ws.SubscribeLogs(ctx, mention)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to logs: %w", err)
	}
	return ch, nil
}

func (s *Solana) GetParsedTransaction(ctx context.Context, signature string) (*models.ParsedTransaction, error) {
	tx, err := s.rpc.GetParsedTransaction(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	return tx, nil
}

func (s *Solana) Close() error {
	return s.ws.Close()
}
