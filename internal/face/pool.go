package face

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	gocv "gocv.io/x/gocv"
)

// ErrPoolShutdown is returned for jobs submitted or still pending when the
// pool is stopped.
var ErrPoolShutdown = errors.New("face alignment pool is shut down")

// Cropper produces an aligned face crop from a BGR image.
type Cropper interface {
	Align(img gocv.Mat) (image.Image, error)
}

// Pool runs face detection/alignment jobs on a bounded set of workers so the
// blocking DNN call never stalls concurrent request handling.
type Pool struct {
	cropper     Cropper
	jobs        chan *alignJob
	workerCount int

	activeJobs int
	mu         sync.Mutex

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// alignJob owns its Mat clone. Whoever takes the job off the channel must
// Close it.
type alignJob struct {
	ctx      context.Context
	img      gocv.Mat
	resultCh chan *alignResult // per-job result channel, buffered
}

type alignResult struct {
	crop image.Image
	err  error
}

// NewPool starts a worker pool over the given cropper. workers <= 0 derives
// the count from the available CPUs (75%, at least 2).
func NewPool(cropper Cropper, workers int) *Pool {
	if workers <= 0 {
		workers = (runtime.NumCPU() * 3) / 4
		if workers < 2 {
			workers = 2
		}
	}

	log.WithFields(logFields).Infof("Initializing face alignment worker pool with %d workers", workers)

	p := &Pool{
		cropper:     cropper,
		jobs:        make(chan *alignJob, workers*2),
		workerCount: workers,
		shutdown:    make(chan struct{}),
	}
	p.startWorkers()
	return p
}

func (p *Pool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		go func(workerID int) {
			log.WithFields(logFields).Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.runJob(job)
				case <-p.shutdown:
					log.WithFields(logFields).Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *Pool) runJob(job *alignJob) {
	defer job.img.Close()

	p.mu.Lock()
	p.activeJobs++
	p.mu.Unlock()

	var result alignResult
	if err := job.ctx.Err(); err != nil {
		result.err = err
	} else {
		result.crop, result.err = p.cropper.Align(job.img)
	}

	p.mu.Lock()
	p.activeJobs--
	p.mu.Unlock()

	// resultCh is buffered, the send never blocks even if the requester
	// already gave up on its context.
	job.resultCh <- &result
}

// Align submits an alignment job and waits for its result. The job works on
// its own clone of img, so the caller may Close img as soon as Align returns,
// including after a context cancellation that leaves the job still running.
func (p *Pool) Align(ctx context.Context, img gocv.Mat) (image.Image, error) {
	job := &alignJob{
		ctx:      ctx,
		img:      img.Clone(),
		resultCh: make(chan *alignResult, 1),
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		job.img.Close()
		return nil, ctx.Err()
	case <-p.shutdown:
		job.img.Close()
		return nil, ErrPoolShutdown
	}

	select {
	case result := <-job.resultCh:
		return result.crop, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolShutdown
	}
}

// ActiveJobCount returns the number of jobs currently being processed.
func (p *Pool) ActiveJobCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeJobs
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int {
	return p.workerCount
}

// QueueCapacity returns the capacity of the job queue.
func (p *Pool) QueueCapacity() int {
	return cap(p.jobs)
}

// Shutdown stops all workers and fails any jobs still waiting in the queue.
// Safe to call more than once.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)

		// Drain jobs the workers never picked up so their Mats are
		// released and their callers get an answer.
		for {
			select {
			case job := <-p.jobs:
				job.img.Close()
				job.resultCh <- &alignResult{err: ErrPoolShutdown}
			default:
				return
			}
		}
	})
}
