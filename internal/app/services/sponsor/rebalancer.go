package sponsor

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/MoveSocial/social_layer/internal/app/domain/gas"
	"github.com/MoveSocial/social_layer/internal/app/metrics"
	"github.com/MoveSocial/social_layer/internal/chain"
	"github.com/MoveSocial/social_layer/pkg/logger"
)

// DefaultRebalanceSchedule runs the pool top-up on the first of each month.
const DefaultRebalanceSchedule = "0 0 1 * *"

// Rebalancer periodically rebuilds the gas pool from the custodial wallet's
// balance. It is a lifecycle service driven by a cron schedule; Rebalance can
// also be invoked directly for operator-forced runs.
type Rebalancer struct {
	svc      *Service
	schedule string
	log      *logger.Logger

	cron *cron.Cron
}

// NewRebalancer constructs the rebalancer. schedule is a standard 5-field
// cron expression; empty means DefaultRebalanceSchedule.
func NewRebalancer(svc *Service, schedule string, log *logger.Logger) *Rebalancer {
	if log == nil {
		log = logger.NewDefault("rebalancer")
	}
	if schedule == "" {
		schedule = DefaultRebalanceSchedule
	}
	return &Rebalancer{svc: svc, schedule: schedule, log: log}
}

// Name implements system.Service.
func (r *Rebalancer) Name() string { return "gas-rebalancer" }

// Start implements system.Service.
func (r *Rebalancer) Start(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if err := r.Rebalance(context.Background(), false); err != nil {
			r.log.WithError(err).Error("scheduled rebalance failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid rebalance schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.log.Infof("rebalance scheduled: %s", r.schedule)
	return nil
}

// Stop implements system.Service.
func (r *Rebalancer) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rebalance splits the wallet balance into a fresh pool of fixed-size fee
// coins and atomically replaces the lease pool with them. Unless forced, it
// is a no-op while the pool still holds more than a third of its target size.
func (r *Rebalancer) Rebalance(ctx context.Context, force bool) error {
	err := r.svc.rebalance(ctx, force)
	switch {
	case err == errPoolHealthy:
		metrics.RecordRebalance("skipped")
		return nil
	case err != nil:
		metrics.RecordRebalance("failed")
		return err
	}
	metrics.RecordRebalance("replaced")
	return nil
}

var errPoolHealthy = fmt.Errorf("pool above refill threshold")

func (s *Service) rebalance(ctx context.Context, force bool) error {
	if !force {
		count, err := s.leases.CountLeases(ctx)
		if err != nil {
			return fmt.Errorf("count leases: %w", err)
		}
		if count > s.cfg.GasCount/3 {
			s.log.WithField("count", count).Info("gas pool healthy, skipping rebalance")
			return errPoolHealthy
		}
	}

	owner := s.submitter.Address()
	coins, err := s.reader.GetAllCoins(ctx, owner)
	if err != nil {
		return fmt.Errorf("list wallet coins: %w", err)
	}
	if len(coins) == 0 {
		return fmt.Errorf("wallet %s holds no fee coins", owner)
	}

	// Merging happens implicitly: every wallet coin becomes gas payment, so
	// the node smashes them into one balance before the split runs.
	block := chain.NewTransactionBlock()
	block.SetGasPayment(coins...)

	amounts := make([]uint64, s.cfg.GasCount)
	for i := range amounts {
		amounts[i] = s.cfg.GasAmount
	}
	split := block.SplitGas(amounts)
	block.Transfer(split, owner)

	result, err := s.submitter.SignAndExecute(ctx, block, chain.ExecuteOptions{ShowEffects: true, ShowObjectChanges: true})
	if err != nil {
		return fmt.Errorf("rebalance transaction: %w", err)
	}

	created := result.CreatedObjects()
	if len(created) == 0 {
		return fmt.Errorf("rebalance %s created no coins", result.Digest)
	}

	leases := make([]gas.Lease, 0, len(created))
	for _, ref := range created {
		leases = append(leases, gas.FromRef(ref))
	}
	if err := s.leases.ReplaceLeases(ctx, leases); err != nil {
		return fmt.Errorf("replace lease pool: %w", err)
	}

	metrics.SetGasPoolSize(len(leases))
	s.log.WithFields(map[string]interface{}{
		"digest": result.Digest,
		"coins":  len(leases),
	}).Info("gas pool rebalanced")
	return nil
}
