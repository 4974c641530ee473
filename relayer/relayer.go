// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer moves signed envelopes from one chain's outbox to another
// chain's inbox.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/locker"
	"github.com/luxfi/locker/messenger"
	"github.com/luxfi/locker/relayer/checkpoint"
	"github.com/luxfi/locker/sqos"
	"github.com/luxfi/locker/state"
	"github.com/luxfi/locker/utils"
)

const (
	DefaultDeliveryTimeout       = 30 * time.Second
	DefaultPollInterval          = time.Second
	DefaultMaxConcurrentMessages = 8
)

// Source exposes the envelopes a chain has queued
type Source interface {
	Chain() string
	Count(toChain string) uint64
	Envelope(toChain string, index uint64) (*messenger.Envelope, error)
}

// Destination accepts envelopes on behalf of a chain
type Destination interface {
	Chain() string
	Deliver(ctx context.Context, env *messenger.Envelope) error
}

var (
	_ Source      = (*messenger.Outbox)(nil)
	_ Destination = (*messenger.Inbox)(nil)
)

type Config struct {
	// RevealDelay holds back envelopes carrying the reveal directive
	RevealDelay time.Duration
	// DeliveryTimeout bounds the retries of a single envelope
	DeliveryTimeout time.Duration
	// PollInterval is the pause between relay passes in Run
	PollInterval time.Duration
	// MaxConcurrentMessages bounds the deliveries in flight
	MaxConcurrentMessages int
	// StartingIndex skips envelopes queued before it
	StartingIndex uint64
}

// Relayer drives one route. A pass delivers every ready envelope past the
// checkpoint; envelopes that can never succeed are dropped and the rest are
// retried on the next pass.
type Relayer struct {
	logger      log.Logger
	source      Source
	destination Destination
	route       string
	cfg         Config
	checkpoint  *checkpoint.Manager
	metrics     *relayerMetrics
	now         func() time.Time

	lock      sync.Mutex
	firstSeen map[uint64]time.Time
}

func New(
	logger log.Logger,
	source Source,
	destination Destination,
	store *state.Store,
	registerer prometheus.Registerer,
	cfg Config,
) (*Relayer, error) {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrentMessages <= 0 {
		cfg.MaxConcurrentMessages = DefaultMaxConcurrentMessages
	}

	route := Route(source.Chain(), destination.Chain())
	cm, err := checkpoint.NewManager(logger, store, route, cfg.StartingIndex)
	if err != nil {
		return nil, err
	}
	return &Relayer{
		logger:      logger,
		source:      source,
		destination: destination,
		route:       route,
		cfg:         cfg,
		checkpoint:  cm,
		metrics:     newRelayerMetrics(registerer),
		now:         time.Now,
		firstSeen:   make(map[uint64]time.Time),
	}, nil
}

// Route names the checkpoint of the route from source to destination
func Route(source, destination string) string {
	return source + "->" + destination
}

// Next returns the index of the first envelope not yet handled
func (r *Relayer) Next() uint64 {
	return r.checkpoint.Next()
}

// Run relays until ctx is done
func (r *Relayer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayPending(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error(
				"Relay pass failed",
				log.String("route", r.route),
				log.Err(err),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayPending makes one pass over the envelopes queued past the checkpoint
// and returns how many were delivered
func (r *Relayer) RelayPending(ctx context.Context) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	start := r.checkpoint.Next()
	batch, err := r.readyBatch(start)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	var delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrentMessages)
	for i, env := range batch {
		index := start + uint64(i)
		g.Go(func() error {
			ok, err := r.relay(gctx, index, env)
			if err != nil {
				return err
			}
			r.checkpoint.Stage(index)
			if ok {
				delivered.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	if flushErr := r.checkpoint.Flush(); flushErr != nil {
		err = errors.Join(err, flushErr)
	}

	next := r.checkpoint.Next()
	for index := range r.firstSeen {
		if index < next {
			delete(r.firstSeen, index)
		}
	}
	return int(delivered.Load()), err
}

// readyBatch returns the envelopes from start up to the first one still held
// back by the reveal delay
func (r *Relayer) readyBatch(start uint64) ([]*messenger.Envelope, error) {
	toChain := r.destination.Chain()
	end := r.source.Count(toChain)
	now := r.now()

	var batch []*messenger.Envelope
	for index := start; index < end; index++ {
		env, err := r.source.Envelope(toChain, index)
		if err != nil {
			return nil, fmt.Errorf("failed to read envelope %d: %w", index, err)
		}
		if r.cfg.RevealDelay > 0 && env.Message != nil && env.Message.SQoS.Contains(sqos.Reveal) {
			seen, ok := r.firstSeen[index]
			if !ok {
				seen = now
				r.firstSeen[index] = now
			}
			if now.Sub(seen) < r.cfg.RevealDelay {
				r.metrics.deferredRevealCount.WithLabelValues(toChain, r.source.Chain()).Inc()
				r.logger.Debug(
					"Holding envelope for reveal",
					log.String("route", r.route),
					log.Uint64("index", index),
					log.Stringer("revealIn", r.cfg.RevealDelay-now.Sub(seen)),
				)
				break
			}
		}
		batch = append(batch, env)
	}
	return batch, nil
}

// relay delivers env with retries. ok is false when the envelope was dropped
// because no retry could succeed.
func (r *Relayer) relay(ctx context.Context, index uint64, env *messenger.Envelope) (bool, error) {
	sourceChain := r.source.Chain()
	destinationChain := r.destination.Chain()
	startTime := time.Now()

	operation := func() error {
		err := r.destination.Deliver(ctx, env)
		if err != nil && isPermanent(err) {
			return utils.Permanent(err)
		}
		return err
	}
	err := utils.WithRetriesTimeout(ctx, r.logger, operation, r.cfg.DeliveryTimeout, "Deliver envelope")
	switch {
	case err == nil:
		r.metrics.successfulRelayMessageCount.WithLabelValues(destinationChain, sourceChain).Inc()
		r.metrics.deliverMessageLatencyMS.WithLabelValues(destinationChain, sourceChain).Set(float64(time.Since(startTime).Milliseconds()))
		r.logger.Info(
			"Relayed envelope",
			log.String("route", r.route),
			log.Uint64("index", index),
			log.Stringer("envelopeID", env.ID()),
		)
		return true, nil
	case errors.Is(err, locker.ErrAlreadyProcessed):
		r.logger.Debug(
			"Envelope already processed",
			log.String("route", r.route),
			log.Uint64("index", index),
		)
		return false, nil
	case isPermanent(err):
		r.metrics.failedRelayMessageCount.WithLabelValues(destinationChain, sourceChain, locker.CodeOf(err).String()).Inc()
		r.logger.Warn(
			"Dropping envelope",
			log.String("route", r.route),
			log.Uint64("index", index),
			log.Stringer("envelopeID", env.ID()),
			log.Err(err),
		)
		return false, nil
	default:
		r.metrics.failedRelayMessageCount.WithLabelValues(destinationChain, sourceChain, "retries exhausted").Inc()
		r.logger.Error(
			"Failed to relay envelope",
			log.String("route", r.route),
			log.Uint64("index", index),
			log.Err(err),
		)
		return false, fmt.Errorf("failed to relay envelope %d: %w", index, err)
	}
}

// isPermanent reports whether delivering the same envelope again can never
// succeed
func isPermanent(err error) bool {
	switch locker.CodeOf(err) {
	case locker.CodeUnauthorized,
		locker.CodeCodec,
		locker.CodeAlreadyProcessed,
		locker.CodeNotRegistered,
		locker.CodeInvalidArgument,
		locker.CodePolicyConflict:
		return true
	default:
		return false
	}
}
