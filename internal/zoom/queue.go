package zoom

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	// createSpacing is the pause before each provider call to smooth
	// bursts; Zoom throttles concurrent creations per account.
	createSpacing = 1 * time.Second
	// createSpacingJitter is added on top of the fixed spacing.
	createSpacingJitter = 250 * time.Millisecond

	queueBuffer = 64
)

// ErrQueueClosed is returned for jobs enqueued after Stop.
var ErrQueueClosed = errors.New("zoom: creation queue closed")

type createJob struct {
	ctx    context.Context
	req    MeetingRequest
	hostID string
	result chan createResult
}

type createResult struct {
	meeting *Meeting
	err     error
}

// CreationQueue serializes meeting-creation calls through a single
// worker goroutine. Each job waits for all prior jobs (success or
// failure) plus a jittered spacing interval before hitting the
// provider. Process-local only: it does not coordinate across multiple
// running instances.
type CreationQueue struct {
	client  *Client
	jobs    chan createJob
	done    chan struct{}
	logger  *zap.Logger
	spacing time.Duration
	jitter  time.Duration
}

// NewCreationQueue creates and starts the queue worker.
func NewCreationQueue(client *Client, logger *zap.Logger) *CreationQueue {
	return newCreationQueue(client, createSpacing, createSpacingJitter, logger)
}

func newCreationQueue(client *Client, spacing, jitter time.Duration, logger *zap.Logger) *CreationQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &CreationQueue{
		client:  client,
		jobs:    make(chan createJob, queueBuffer),
		done:    make(chan struct{}),
		logger:  logger,
		spacing: spacing,
		jitter:  jitter,
	}
	go q.run()
	return q
}

// EnqueueCreate submits a meeting-creation request and blocks until it
// has been processed in turn. One job's failure does not affect the jobs
// queued behind it.
func (q *CreationQueue) EnqueueCreate(ctx context.Context, req MeetingRequest, hostID string) (*Meeting, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}
	job := createJob{ctx: ctx, req: req, hostID: hostID, result: make(chan createResult, 1)}
	select {
	case q.jobs <- job:
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-job.result:
		return res.meeting, res.err
	case <-q.done:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts the worker down. Jobs already queued receive ErrQueueClosed.
func (q *CreationQueue) Stop() {
	close(q.done)
}

func (q *CreationQueue) run() {
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case job := <-q.jobs:
			q.process(job)
		}
	}
}

func (q *CreationQueue) process(job createJob) {
	// Caller may have given up while the job sat in the queue.
	if err := job.ctx.Err(); err != nil {
		job.result <- createResult{err: err}
		return
	}

	delay := q.spacing
	if q.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(q.jitter)))
	}
	if err := sleepCtx(job.ctx, delay); err != nil {
		job.result <- createResult{err: err}
		return
	}

	meeting, err := q.client.CreateMeeting(job.ctx, job.req, job.hostID)
	if err != nil {
		q.logger.Warn("queued meeting creation failed", zap.Error(err))
	}
	job.result <- createResult{meeting: meeting, err: err}
}

func (q *CreationQueue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.result <- createResult{err: ErrQueueClosed}
		default:
			return
		}
	}
}
