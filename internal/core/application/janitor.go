package application

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/lockstep-labs/chand/internal/core/domain"
	"github.com/lockstep-labs/chand/internal/core/ports"
	"github.com/lockstep-labs/chand/pkg/chanlib"
	log "github.com/sirupsen/logrus"
)

// janitor runs alongside the app service. It prunes finished swap records
// once their retention period is over and alerts when a disputed channel
// becomes withdrawable.
type janitor struct {
	repoManager ports.RepoManager
	lock        ports.ExecutionLock
	scheduler   ports.SchedulerService
	now         func() int64
	publish     func(topic ports.Topic, message any)

	pruneInterval time.Duration
	retention     time.Duration

	// avoid scheduling the same alert multiple times
	locker         *sync.Mutex
	scheduledTasks map[chanlib.ChannelID]struct{}
}

func newJanitor(
	repoManager ports.RepoManager, lock ports.ExecutionLock,
	scheduler ports.SchedulerService, now func() int64,
	publish func(topic ports.Topic, message any),
	pruneInterval, retention time.Duration,
) *janitor {
	return &janitor{
		repoManager, lock, scheduler, now, publish,
		pruneInterval, retention, &sync.Mutex{}, make(map[chanlib.ChannelID]struct{}),
	}
}

func (j *janitor) start() error {
	j.scheduler.Start()

	ctx := context.Background()
	disputed, err := j.repoManager.Channels().GetDisputed(ctx)
	if err != nil {
		return err
	}
	if len(disputed) > 0 {
		log.Infof("janitor: restoring %d disputed channels", len(disputed))
	}
	for _, id := range disputed {
		channel, err := j.repoManager.Channels().Get(ctx, id)
		if err != nil {
			log.WithError(err).WithField("channel_id", id).Warn("failed to get disputed channel")
			continue
		}
		j.scheduleWithdrawableAlert(channel.ID, channel.Timeout)
	}

	if j.pruneInterval <= 0 {
		return nil
	}
	return j.scheduler.ScheduleTaskEvery(j.pruneInterval, j.pruneSwaps)
}

func (j *janitor) stop() {
	j.scheduler.Stop()
}

func (j *janitor) scheduleWithdrawableAlert(id chanlib.ChannelID, at int64) {
	j.locker.Lock()
	defer j.locker.Unlock()

	if _, scheduled := j.scheduledTasks[id]; scheduled {
		return
	}

	task := func() {
		j.locker.Lock()
		delete(j.scheduledTasks, id)
		j.locker.Unlock()

		channel, err := j.repoManager.Channels().Get(context.Background(), id)
		if err != nil {
			log.WithError(err).WithField("channel_id", id).
				Debug("janitor: skipping withdrawable alert")
			return
		}
		if !channel.IsDisputed() {
			return
		}
		j.publish(ports.ChannelWithdrawable, channelAlert(channel))
	}

	if !j.scheduler.AfterNow(at) {
		go task()
		return
	}
	if err := j.scheduler.ScheduleTaskOnce(at, task); err != nil {
		log.WithError(err).WithField("channel_id", id).
			Warn("janitor: failed to schedule withdrawable alert")
		return
	}
	j.scheduledTasks[id] = struct{}{}
	log.Debugf("janitor: scheduled withdrawable alert for channel %s at %d", id, at)
}

// pruneSwaps deletes the finished swaps whose timeout is older than the
// retention period.
func (j *janitor) pruneSwaps() {
	ctx := context.Background()

	release, err := j.lock.Lock(ctx)
	if err != nil {
		log.WithError(err).Warn("janitor: failed to acquire lock")
		return
	}
	defer release()

	before := j.now() - int64(j.retention.Seconds())
	count := 0
	if err := j.repoManager.RunInTx(ctx, func(ctx context.Context) error {
		ids, err := j.repoManager.Swaps().GetReclaimable(ctx, before)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := j.repoManager.Swaps().Delete(ctx, id); err != nil && !stderrors.Is(err, domain.ErrSwapNotFound) {
				return err
			}
		}
		count = len(ids)
		return nil
	}); err != nil {
		log.WithError(err).Warn("janitor: failed to prune swaps")
		return
	}
	if count > 0 {
		log.Infof("janitor: pruned %d swaps", count)
	}
}
