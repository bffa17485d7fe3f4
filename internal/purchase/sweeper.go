package purchase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vtuplatform/internal/provider"
	"vtuplatform/internal/transaction"
)

// SweeperConfig tunes the stale-pending reconciliation loop.
type SweeperConfig struct {
	Interval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
	OlderThan time.Duration `envconfig:"SWEEP_OLDER_THAN" default:"10m"`
	BatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"100"`
}

// Sweeper resolves transactions stuck pending after a process crash or
// a provider call that timed out without a definitive answer. Each
// stale record is checked against the vendor's own view and settled or
// refunded accordingly.
type Sweeper struct {
	service *Service
	cfg     SweeperConfig
	logger  *slog.Logger
}

// NewSweeper creates a reconciliation sweeper.
func NewSweeper(service *Service, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, cfg: cfg, logger: logger}
}

// Run loops until the context is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.Sweep(ctx); err != nil {
				sw.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep processes one batch of stale pending transactions.
func (sw *Sweeper) Sweep(ctx context.Context) error {
	stale, err := sw.service.transactions.ListStalePending(ctx, sw.cfg.OlderThan, sw.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		if err := sw.resolve(ctx, tx); err != nil {
			sw.logger.Warn("could not resolve stale transaction",
				"reference", tx.ReferenceNumber,
				"provider", tx.Provider,
				"error", err)
		}
	}
	return nil
}

func (sw *Sweeper) resolve(ctx context.Context, tx *transaction.Transaction) error {
	if !tx.Type.IsPurchase() {
		// Funding rows never debited the wallet, so the refund branch
		// below would mint money. Settlement belongs to the webhook
		// reconciler.
		sweeperResolutions.WithLabelValues("skipped").Inc()
		return nil
	}

	client := sw.service.providers.Get(tx.Provider)
	if client == nil {
		return ErrUnknownProvider
	}
	if !client.Capabilities().Status {
		// No vendor-side status query exists; the record needs manual
		// investigation and is left pending.
		sweeperResolutions.WithLabelValues("unresolvable").Inc()
		return provider.ErrNotSupported
	}

	status, err := client.TransactionStatus(ctx, tx.ReferenceNumber)
	if err != nil {
		return err
	}

	switch status {
	case provider.ResultSuccess:
		if err := sw.service.transactions.MarkSuccessful(ctx, nil, tx.ReferenceNumber, transaction.StatusSuccessful, nil); err != nil {
			if errors.Is(err, transaction.ErrAlreadySettled) {
				return nil
			}
			return err
		}
		sw.logger.Info("stale transaction confirmed successful",
			"reference", tx.ReferenceNumber, "provider", tx.Provider)
		sweeperResolutions.WithLabelValues("success").Inc()
		return nil

	case provider.ResultPending:
		// Still in flight at the vendor. Checked again next sweep.
		return nil

	default:
		if err := sw.service.transactions.MarkFailed(ctx, nil, tx.ReferenceNumber, "reconciled: provider reports failure"); err != nil {
			if errors.Is(err, transaction.ErrAlreadySettled) {
				return nil
			}
			return err
		}
		if _, err := sw.service.wallets.Credit(ctx, tx.UserID, tx.TotalCharged, "refund "+tx.ReferenceNumber); err != nil {
			sw.logger.Error("sweeper refund failed",
				"reference", tx.ReferenceNumber, "error", err)
			return err
		}
		sw.logger.Info("stale transaction refunded",
			"reference", tx.ReferenceNumber, "provider", tx.Provider)
		sweeperResolutions.WithLabelValues("refunded").Inc()
		return nil
	}
}
