package face

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	gocv "gocv.io/x/gocv"
)

type stubCropper struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (s *stubCropper) Align(_ gocv.Mat) (image.Image, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return image.NewRGBA(image.Rect(0, 0, cropSize, cropSize)), nil
}

func (s *stubCropper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPoolAlign(t *testing.T) {
	cropper := &stubCropper{}
	pool := NewPool(cropper, 2)
	defer pool.Shutdown()

	img := gocv.NewMat()
	defer img.Close()

	crop, err := pool.Align(context.Background(), img)
	if err != nil {
		t.Fatalf("Align returned error: %v", err)
	}
	if crop == nil {
		t.Fatal("Align returned nil crop")
	}
	if cropper.callCount() != 1 {
		t.Errorf("cropper called %d times, expected 1", cropper.callCount())
	}
}

func TestPoolAlignPropagatesError(t *testing.T) {
	cropper := &stubCropper{err: ErrNoFace}
	pool := NewPool(cropper, 1)
	defer pool.Shutdown()

	img := gocv.NewMat()
	defer img.Close()

	_, err := pool.Align(context.Background(), img)
	if !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestPoolAlignContextCancelled(t *testing.T) {
	cropper := &stubCropper{delay: 200 * time.Millisecond}
	pool := NewPool(cropper, 1)
	defer pool.Shutdown()

	img := gocv.NewMat()
	defer img.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Align(ctx, img)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

// sizeCropper reads the Mat it is handed after a delay, recording what it
// saw, so tests can prove the job's image outlives the caller's copy.
type sizeCropper struct {
	delay time.Duration
	rows  int
	cols  int
	done  chan struct{}
}

func (s *sizeCropper) Align(img gocv.Mat) (image.Image, error) {
	time.Sleep(s.delay)
	s.rows = img.Rows()
	s.cols = img.Cols()
	close(s.done)
	return image.NewRGBA(image.Rect(0, 0, cropSize, cropSize)), nil
}

func TestPoolAlignCancelledCallerClosesMat(t *testing.T) {
	cropper := &sizeCropper{delay: 100 * time.Millisecond, done: make(chan struct{})}
	pool := NewPool(cropper, 1)
	defer pool.Shutdown()

	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Align(ctx, img)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The request handler path frees its Mat as soon as Align returns.
	// The worker is still mid-alignment and must keep reading valid data.
	img.Close()

	select {
	case <-cropper.done:
	case <-time.After(time.Second):
		t.Fatal("worker never finished the in-flight job")
	}
	if cropper.rows != 10 || cropper.cols != 10 {
		t.Errorf("worker saw %dx%d Mat, expected 10x10", cropper.rows, cropper.cols)
	}
}

func TestPoolAlignAfterShutdown(t *testing.T) {
	pool := NewPool(&stubCropper{}, 1)
	pool.Shutdown()
	pool.Shutdown() // repeat calls must be safe

	img := gocv.NewMat()
	defer img.Close()

	_, err := pool.Align(context.Background(), img)
	if !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("expected ErrPoolShutdown, got %v", err)
	}
}

func TestPoolShutdownFailsQueuedJobs(t *testing.T) {
	cropper := &stubCropper{delay: 300 * time.Millisecond}
	pool := NewPool(cropper, 1)

	img := gocv.NewMat()
	defer img.Close()

	// Occupy the single worker, then queue more jobs behind it.
	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Align(context.Background(), img)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)

	pool.Shutdown()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Align callers still blocked after Shutdown")
	}
	close(errs)

	sawShutdownErr := false
	for err := range errs {
		if errors.Is(err, ErrPoolShutdown) {
			sawShutdownErr = true
		} else if err != nil {
			t.Errorf("unexpected Align error: %v", err)
		}
	}
	if !sawShutdownErr {
		t.Error("expected at least one queued job to fail with ErrPoolShutdown")
	}
}

func TestPoolConcurrentJobs(t *testing.T) {
	cropper := &stubCropper{delay: 10 * time.Millisecond}
	pool := NewPool(cropper, 4)
	defer pool.Shutdown()

	img := gocv.NewMat()
	defer img.Close()

	const jobs = 16
	var wg sync.WaitGroup
	errs := make(chan error, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Align(context.Background(), img); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Align failed: %v", err)
	}
	if cropper.callCount() != jobs {
		t.Errorf("cropper called %d times, expected %d", cropper.callCount(), jobs)
	}
}

func TestPoolDefaultWorkerCount(t *testing.T) {
	pool := NewPool(&stubCropper{}, 0)
	defer pool.Shutdown()

	if pool.WorkerCount() < 2 {
		t.Errorf("default worker count = %d, expected at least 2", pool.WorkerCount())
	}
	if pool.QueueCapacity() != pool.WorkerCount()*2 {
		t.Errorf("queue capacity = %d, expected %d", pool.QueueCapacity(), pool.WorkerCount()*2)
	}
	if pool.ActiveJobCount() != 0 {
		t.Errorf("idle pool reports %d active jobs", pool.ActiveJobCount())
	}
}
