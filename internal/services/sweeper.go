package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Sweeper is the periodic task driving the time-based transitions:
// activate pending auctions, close expired ones, retry stuck
// settlements and gateway sessions. Every pass is idempotent, so
// overlapping ticks or a second instance only waste work; the leader
// election just avoids that waste.
type Sweeper struct {
	cron       *cron.Cron
	auctionSvc *AuctionService
	closer     *CloserService
	settlement *SettlementService
	leader     LeaderGate
	instanceID string
	log        logger.Logger
}

// LeaderGate is satisfied by the redis leader election; a nil gate
// means every instance sweeps.
type LeaderGate interface {
	IsLeader(ctx context.Context, instanceID string) (bool, error)
}

func NewSweeper(
	auctionSvc *AuctionService,
	closer *CloserService,
	settlement *SettlementService,
	leader LeaderGate,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) (*Sweeper, error) {
	s := &Sweeper{
		cron:       cron.New(),
		auctionSvc: auctionSvc,
		closer:     closer,
		settlement: settlement,
		leader:     leader,
		instanceID: instanceID,
		log:        log,
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		// A sweeper that schedules nothing would quietly stop closing
		// auctions; refuse to start that way.
		return nil, fmt.Errorf("schedule sweep every %s: %w", interval, err)
	}

	return s, nil
}

func (s *Sweeper) Start() {
	s.log.Info("Starting sweep scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.log.Info("Stopping sweep scheduler")
	<-s.cron.Stop().Done()
}

func (s *Sweeper) Sweep(ctx context.Context) {
	if s.leader != nil {
		isLeader, err := s.leader.IsLeader(ctx, s.instanceID)
		if err != nil {
			s.log.Error("Leader check failed, sweeping anyway", "error", err)
		} else if !isLeader {
			return
		}
	}

	now := time.Now()

	if _, err := s.auctionSvc.ActivatePending(ctx, now); err != nil {
		s.log.Error("Activation pass failed", "error", err)
	}

	if _, err := s.closer.CloseExpiredAuctions(ctx, now); err != nil {
		s.log.Error("Closure pass failed", "error", err)
	}

	if recovered, err := s.closer.RetryUnsettled(ctx); err != nil {
		s.log.Error("Unsettled retry pass failed", "error", err)
	} else if recovered > 0 {
		s.log.Info("Recovered unsettled auctions", "count", recovered)
	}

	if recovered, err := s.settlement.RetryGatewaySessions(ctx); err != nil {
		s.log.Error("Gateway retry pass failed", "error", err)
	} else if recovered > 0 {
		s.log.Info("Recovered gateway sessions", "count", recovered)
	}
}
