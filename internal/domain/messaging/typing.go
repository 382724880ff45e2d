package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const typingDeliverTimeout = 2 * time.Second

type typingJob struct {
	receiverID int64
	payload    []byte
}

// typingPool delivers typing indicators from a bounded queue. Enqueue never
// blocks; a full queue drops the indicator.
type typingPool struct {
	out     Deliverer
	queue   chan typingJob
	workers int
	dropped atomic.Int64
	logger  zerolog.Logger
}

func newTypingPool(out Deliverer, workers, queueSize int, logger zerolog.Logger) *typingPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &typingPool{
		out:     out,
		queue:   make(chan typingJob, queueSize),
		workers: workers,
		logger:  logger,
	}
}

func (p *typingPool) enqueue(job typingJob) bool {
	select {
	case p.queue <- job:
		return true
	default:
		p.dropped.Add(1)
		p.logger.Debug().Int64("receiver_id", job.receiverID).Msg("typing queue full, indicator dropped")
		return false
	}
}

// run starts the workers and blocks until ctx is cancelled and they exit.
// Jobs still queued at shutdown are discarded.
func (p *typingPool) run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-p.queue:
					p.deliver(ctx, job)
				}
			}
		}()
	}
	wg.Wait()
}

func (p *typingPool) deliver(ctx context.Context, job typingJob) {
	ctx, cancel := context.WithTimeout(ctx, typingDeliverTimeout)
	defer cancel()
	if err := p.out.Deliver(ctx, job.receiverID, job.payload); err != nil {
		p.logger.Debug().Err(err).Int64("receiver_id", job.receiverID).Msg("typing delivery failed")
	}
}
