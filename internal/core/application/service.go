package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	"github.com/lockstep-labs/chand/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type executionTokenKey struct{}

// executionToken is attached to the context of the operation holding the
// execution lock, including the payout hook it triggers.
type executionToken struct {
	operation Operation
}

type service struct {
	// services
	repoManager ports.RepoManager
	lock        ports.ExecutionLock
	alerts      ports.Alerts
	payoutHook  ports.PayoutHook
	clock       clock.Clock
	channels    *channelStateMachine
	swaps       *swapEngine
	janitor     *janitor
	metrics     *metrics

	// the last observed time, to never go back in time
	lastNow  int64
	nowMutex *sync.Mutex

	eventsCh     chan domain.Event
	eventsClosed bool
	eventsMutex  *sync.RWMutex
}

func NewService(
	repoManager ports.RepoManager,
	verifier ports.SignatureVerifier,
	liveStore ports.LiveStore,
	scheduler ports.SchedulerService,
	alerts ports.Alerts,
	payoutHook ports.PayoutHook,
	clk clock.Clock,
	owner chanlib.Address,
	swapPruneInterval, swapRetention time.Duration,
) (Service, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("missing owner address")
	}
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %s", err)
	}

	svc := &service{
		repoManager: repoManager,
		lock:        liveStore.ExecutionLock(),
		alerts:      alerts,
		payoutHook:  payoutHook,
		clock:       clk,
		channels:    &channelStateMachine{repoManager, verifier, owner},
		swaps:       &swapEngine{repoManager, verifier, owner},
		metrics:     m,
		nowMutex:    &sync.Mutex{},
		eventsCh:    make(chan domain.Event, 64),
		eventsMutex: &sync.RWMutex{},
	}
	svc.janitor = newJanitor(
		repoManager, svc.lock, scheduler, svc.now, svc.publishAlert,
		swapPruneInterval, swapRetention,
	)

	repoManager.Events().RegisterEventsHandler(domain.ChannelTopic, svc.propagateEvents)
	repoManager.Events().RegisterEventsHandler(domain.SwapTopic, svc.propagateEvents)

	return svc, nil
}

func (s *service) Start() errors.Error {
	log.Debug("starting janitor...")
	if err := s.janitor.start(); err != nil {
		return errors.INTERNAL_ERROR.Wrap(err)
	}
	log.Debug("started app service")
	return nil
}

func (s *service) Stop() {
	s.janitor.stop()
	s.repoManager.Events().ClearRegisteredHandlers(domain.ChannelTopic, domain.SwapTopic)
	s.repoManager.Close()
	log.Debug("closed connection to db")

	s.eventsMutex.Lock()
	defer s.eventsMutex.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.eventsCh)
	}
}

func (s *service) GetEventsChannel(_ context.Context) <-chan domain.Event {
	return s.eventsCh
}

func (s *service) Submit(ctx context.Context, req Request) (*Result, errors.Error) {
	if req == nil {
		return nil, errors.INVALID_MESSAGE.New("missing request")
	}
	start := time.Now()
	res, err := s.submit(ctx, req)
	s.metrics.record(ctx, req.Operation(), err, time.Since(start))
	return res, err
}

func (s *service) submit(ctx context.Context, req Request) (*Result, errors.Error) {
	if err := req.decode(); err != nil {
		return nil, err
	}

	if token, ok := ctx.Value(executionTokenKey{}).(*executionToken); ok {
		if !req.exempt() {
			return nil, errors.REENTRANT_CALL.New(
				"%s called while %s is in progress", req.Operation(), token.operation,
			).WithMetadata(errors.OperationMetadata{Operation: string(req.Operation())})
		}
		return s.execute(ctx, req)
	}

	release, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, errors.INTERNAL_ERROR.Wrap(fmt.Errorf("failed to acquire lock: %w", err)).
			WithMetadata(map[string]any{"operation": string(req.Operation())})
	}
	defer release()

	ctx = context.WithValue(ctx, executionTokenKey{}, &executionToken{req.Operation()})
	return s.execute(ctx, req)
}

func (s *service) execute(ctx context.Context, req Request) (*Result, errors.Error) {
	now := s.now()
	logger := log.WithFields(log.Fields{
		"operation":  req.Operation(),
		"request_id": newRequestId(),
	})

	var out *outcome
	if err := s.repoManager.RunInTx(ctx, func(ctx context.Context) error {
		o, err := s.dispatch(ctx, now, req)
		if err != nil {
			return err
		}
		out = o
		return nil
	}); err != nil {
		typedErr := toTypedError(err)
		if typedErr.Code() == errors.INTERNAL_ERROR.Code {
			typedErr.Log().WithError(err).Error("operation failed")
		} else {
			logger.WithError(err).Debug("operation rejected")
		}
		return nil, typedErr
	}

	out.result.Operation = req.Operation()
	logger.Debug("operation committed")
	s.afterCommit(ctx, out)
	return out.result, nil
}

func (s *service) dispatch(
	ctx context.Context, now int64, req Request,
) (*outcome, errors.Error) {
	switch r := req.(type) {
	case *AnchorRequest:
		return s.channels.anchor(ctx, now, r)
	case *UpdateRequest:
		return s.channels.update(ctx, now, r)
	case *AddFundsRequest:
		return s.channels.addFunds(ctx, now, r)
	case *SettleRequest:
		return s.channels.settle(ctx, now, r)
	case *SettleSubsetRequest:
		return s.channels.settleSubset(ctx, now, r)
	case *StartDisputeRequest:
		return s.channels.startDispute(ctx, now, r)
	case *WithdrawRequest:
		return s.channels.withdraw(ctx, now, r)
	case *ChangeShardStateRequest:
		return s.channels.changeShardState(ctx, now, r)
	case *StakeRequest:
		return s.swaps.stake(ctx, now, r)
	case *RedeemRequest:
		return s.swaps.redeem(ctx, now, r)
	case *RefundRequest:
		return s.swaps.refund(ctx, now, r)
	default:
		return nil, errors.INVALID_MESSAGE.New("unsupported request %T", req)
	}
}

// afterCommit runs the side effects of a committed operation. ctx still
// carries the execution token so that the payout hook can't re-enter a
// guarded operation.
func (s *service) afterCommit(ctx context.Context, out *outcome) {
	if len(out.payouts) > 0 && s.payoutHook != nil {
		if err := s.payoutHook.OnPayout(ctx, out.payouts); err != nil {
			log.WithError(err).Warn("payout hook failed")
		}
	}

	if out.event != nil {
		if err := s.repoManager.Events().Publish(ctx, out.event); err != nil {
			log.WithError(err).WithField("event", out.event.GetType()).
				Warn("failed to publish event")
		}
	}

	for _, a := range out.alerts {
		go s.publishAlert(a.topic, a.message)
	}

	if out.withdrawableAt > 0 && out.result.ChannelID != nil {
		s.janitor.scheduleWithdrawableAlert(*out.result.ChannelID, out.withdrawableAt)
	}
}

// now returns the current unix time, never earlier than a previously
// returned value.
func (s *service) now() int64 {
	s.nowMutex.Lock()
	defer s.nowMutex.Unlock()

	now := s.clock.Now().Unix()
	if now < s.lastNow {
		now = s.lastNow
	}
	s.lastNow = now
	return now
}

func (s *service) publishAlert(topic ports.Topic, message any) {
	if s.alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.alerts.Publish(ctx, topic, message); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("failed to publish alert")
	}
}

func (s *service) propagateEvents(events []domain.Event) {
	s.eventsMutex.RLock()
	defer s.eventsMutex.RUnlock()
	if s.eventsClosed {
		return
	}

	for _, e := range events {
		select {
		case s.eventsCh <- e:
		default:
			log.WithField("event", e.GetType()).Warn("events channel is full, dropping event")
		}
	}
}
