package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/promptelo/internal/adapters/mq/queue"
	worker "github.com/okian/promptelo/internal/adapters/mq/worker"
	model "github.com/okian/promptelo/internal/domain/model"
	logging "github.com/okian/promptelo/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockExecutor struct {
	mu   sync.Mutex
	ran  map[string]bool
	errs map[string]error
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{ran: map[string]bool{}, errs: map[string]error{}}
}

func (me *mockExecutor) Execute(ctx context.Context, job model.Job) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.ran[job.ID] = true
	return me.errs[job.ID]
}

func (me *mockExecutor) setError(id string, err error) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.errs[id] = err
}

func (me *mockExecutor) count() int {
	me.mu.Lock()
	defer me.mu.Unlock()
	return len(me.ran)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		exec := newMockExecutor()
		w := worker.NewInMemoryWorker(q, exec, worker.WithName("test-worker"), worker.WithLogger(logging.Nop()))

		convey.So(w.Name(), convey.ShouldEqual, "test-worker")

		convey.Convey("When running jobs with one failure", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			exec.setError("bad", errors.New("evaluator exhausted"))
			q.jobs <- model.Job{ID: "good"}
			q.jobs <- model.Job{ID: "bad"}

			convey.Convey("Then both run and the counters reflect the outcome", func() {
				convey.So(eventually(func() bool { return w.Processed()+w.Failed() == 2 }), convey.ShouldBeTrue)
				convey.So(w.Processed(), convey.ShouldEqual, 1)
				convey.So(w.Failed(), convey.ShouldEqual, 1)
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()
			cancel()

			convey.Convey("Then the worker stops", func() {
				select {
				case <-done:
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		exec := newMockExecutor()

		convey.Convey("When creating a pool with a non-positive count", func() {
			pool := worker.NewPool(0, q, exec)

			convey.Convey("Then the default size is used", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When starting a pool and enqueueing jobs", func() {
			pool := worker.NewPool(3, q, exec)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			for _, id := range []string{"j1", "j2", "j3", "j4"} {
				q.jobs <- model.Job{ID: id}
			}

			convey.Convey("Then every job is executed once", func() {
				convey.So(eventually(func() bool { return pool.Processed() == 4 }), convey.ShouldBeTrue)
				convey.So(exec.count(), convey.ShouldEqual, 4)
				convey.So(pool.Failed(), convey.ShouldEqual, 0)
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})
	})
}

func TestWorkerPoolWithQueue(t *testing.T) {
	convey.Convey("Given a pool reading from the in-memory queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		exec := newMockExecutor()
		pool := worker.NewPool(2, q, exec)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(q.Enqueue(ctx, model.Job{ID: "a"}), convey.ShouldBeNil)
		convey.So(q.Enqueue(ctx, model.Job{ID: "b"}), convey.ShouldBeNil)

		convey.Convey("Then queued jobs drain through the pool", func() {
			convey.So(eventually(func() bool { return exec.count() == 2 }), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
		})
	})
}
