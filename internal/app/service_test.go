package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/promptelo/internal/app"
	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/task"
	"github.com/okian/promptelo/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type completerFunc func(ctx context.Context, req capability.Request) (capability.Response, error)

func (f completerFunc) Complete(ctx context.Context, req capability.Request) (capability.Response, error) {
	return f(ctx, req)
}

func reply(text string) completerFunc {
	return func(context.Context, capability.Request) (capability.Response, error) {
		return capability.Response{Text: text, Backend: "fake"}, nil
	}
}

// recorder counts calls and remembers the prompts it saw.
type recorder struct {
	mu      sync.Mutex
	text    string
	prompts []string
}

func (r *recorder) Complete(_ context.Context, req capability.Request) (capability.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, req.Prompt)
	return capability.Response{Text: r.text, Backend: "fake"}, nil
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

var fixedTask = model.Task{
	Description: "Summarize a support ticket.",
	TestCases:   []string{"Printer jams on page 2", "Login loops forever"},
	Candidates:  []string{"Be brief.", "Be thorough."},
}

func newService(caps capability.Set, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithLogger(logger.Nop()),
		service.WithSettings(model.Settings{Rounds: 2, PairsPerRound: 2, Parallelism: 1}),
	}, opts...)
	return service.New(caps, opts...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestService_Run(t *testing.T) {
	Convey("Given a service with fixed candidates and a prompt-only evaluator", t, func() {
		ctx := context.Background()
		svc := newService(capability.Set{Evaluator: reply("WINNER: A\nREASON: shorter")},
			service.WithSettings(model.Settings{Mode: model.JudgeModePromptOnly}),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		res, err := svc.Run(ctx, model.Job{Task: fixedTask})

		Convey("Then the single match decides the standings", func() {
			So(err, ShouldBeNil)
			So(res.ID, ShouldNotBeEmpty)
			So(res.Matches, ShouldHaveLength, 1)
			So(res.Standings[0].Rating, ShouldEqual, 1212.0)
			So(res.Termination, ShouldEqual, model.TerminationExhausted)
		})

		Convey("Then the result is stored and reported complete", func() {
			stored, err := svc.Result(ctx, res.ID)
			So(err, ShouldBeNil)
			So(stored.Standings, ShouldResemble, res.Standings)

			info, err := svc.Status(ctx, res.ID)
			So(err, ShouldBeNil)
			So(info.Status, ShouldEqual, model.JobComplete)

			list, err := svc.List(ctx, 10)
			So(err, ShouldBeNil)
			So(list, ShouldHaveLength, 1)
		})
	})

	Convey("Given a service that generates candidates and judges on evidence", t, func() {
		gen := &recorder{text: "1. Prompt one\n2. Prompt two\n3. Prompt three"}
		answers := &recorder{text: "an answer"}
		eval := &recorder{text: "WINNER: DRAW\nREASON: equal"}
		svc := newService(capability.Set{Generator: gen, AnswerProvider: answers, Evaluator: eval},
			service.WithSettings(model.Settings{Candidates: 3, Rounds: 1, PairsPerRound: 1}),
		)

		tk := fixedTask
		tk.Candidates = nil
		res, err := svc.Run(context.Background(), model.Job{Task: tk})

		Convey("Then every candidate answered every test case before judging", func() {
			So(err, ShouldBeNil)
			So(res.Standings, ShouldHaveLength, 3)
			So(gen.calls(), ShouldEqual, 1)
			So(answers.calls(), ShouldEqual, 6)
			So(eval.calls(), ShouldEqual, 1)
			So(eval.prompts[0], ShouldContainSubstring, "ANSWER A:\nan answer")
		})
	})

	Convey("Given invalid input", t, func() {
		svc := newService(capability.Set{Evaluator: reply("WINNER: A")})

		Convey("When the task has no test cases", func() {
			_, err := svc.Run(context.Background(), model.Job{Task: model.Task{Description: "x"}})
			So(errors.Is(err, task.ErrInvalid), ShouldBeTrue)
		})

		Convey("When candidates must be generated without a generator", func() {
			tk := fixedTask
			tk.Candidates = nil
			_, err := svc.Run(context.Background(), model.Job{Task: tk})
			So(errors.Is(err, service.ErrNoGenerator), ShouldBeTrue)
		})

		Convey("When no evaluator is configured", func() {
			_, err := newService(capability.Set{}).Run(context.Background(), model.Job{Task: fixedTask})
			So(errors.Is(err, service.ErrNoEvaluator), ShouldBeTrue)
		})

		Convey("When looking up an unknown id", func() {
			_, err := svc.Status(context.Background(), "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a stopped service", t, func() {
		svc := newService(capability.Set{Evaluator: reply("WINNER: A")})
		_, _, err := svc.Submit(context.Background(), model.Job{Task: fixedTask})
		So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		So(svc.GetStats()["started"], ShouldEqual, false)
	})

	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newService(capability.Set{Evaluator: reply("WINNER: B\nREASON: more detail")},
			service.WithWorkerCount(2),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When a job is submitted", func() {
			id, dup, err := svc.Submit(ctx, model.Job{Task: fixedTask, Key: "ticket-1"})
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)

			Convey("Then it completes in the background", func() {
				So(eventually(func() bool {
					info, err := svc.Status(ctx, id)
					return err == nil && info.Status == model.JobComplete
				}), ShouldBeTrue)
				res, err := svc.Result(ctx, id)
				So(err, ShouldBeNil)
				So(res.Standings[0].Rating, ShouldEqual, 1212.0)
				So(svc.GetStats()["started"], ShouldEqual, true)
			})

			Convey("Then resubmitting the key returns the same job", func() {
				again, dup, err := svc.Submit(ctx, model.Job{Task: fixedTask, Key: "ticket-1"})
				So(err, ShouldBeNil)
				So(dup, ShouldBeTrue)
				So(again, ShouldEqual, id)
			})
		})

		Convey("When an invalid job is submitted", func() {
			_, _, err := svc.Submit(ctx, model.Job{Task: model.Task{TestCases: []string{"t"}}})
			So(errors.Is(err, task.ErrInvalid), ShouldBeTrue)
		})
	})

	Convey("Given a service whose evaluator blocks", t, func() {
		ctx := context.Background()
		release := make(chan struct{})
		var started atomic.Int32
		blocking := completerFunc(func(ctx context.Context, _ capability.Request) (capability.Response, error) {
			started.Add(1)
			select {
			case <-release:
				return capability.Response{Text: "WINNER: A"}, nil
			case <-ctx.Done():
				return capability.Response{}, ctx.Err()
			}
		})
		svc := newService(capability.Set{Evaluator: blocking},
			service.WithWorkerCount(1),
			service.WithQueueSize(1),
		)
		So(svc.Start(ctx), ShouldBeNil)

		var backpressure error
		for i := 0; i < 10 && backpressure == nil; i++ {
			if _, _, err := svc.Submit(ctx, model.Job{Task: fixedTask}); err != nil {
				backpressure = err
			}
			time.Sleep(5 * time.Millisecond)
		}

		Convey("Then submissions are rejected once the queue is full", func() {
			So(backpressure, ShouldNotBeNil)
			So(errors.Is(backpressure, service.ErrBackpressure), ShouldBeTrue)
			So(strings.Contains(backpressure.Error(), "full"), ShouldBeTrue)
		})

		close(release)
		svc.Stop(ctx)
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a service running a slow tournament", t, func() {
		ctx := context.Background()
		slow := completerFunc(func(ctx context.Context, _ capability.Request) (capability.Response, error) {
			select {
			case <-time.After(150 * time.Millisecond):
				return capability.Response{Text: "WINNER: A\nREASON: slower but sure", Backend: "fake"}, nil
			case <-ctx.Done():
				return capability.Response{}, ctx.Err()
			}
		})
		svc := newService(capability.Set{Evaluator: slow},
			service.WithWorkerCount(1),
			service.WithSettings(model.Settings{Mode: model.JudgeModePromptOnly}),
		)
		So(svc.Start(ctx), ShouldBeNil)

		id, _, err := svc.Submit(ctx, model.Job{Task: fixedTask})
		So(err, ShouldBeNil)
		So(eventually(func() bool {
			info, err := svc.Status(ctx, id)
			return err == nil && info.Status == model.JobRunning
		}), ShouldBeTrue)

		Convey("When stopping with a generous deadline", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			begin := time.Now()
			svc.Stop(stopCtx)
			elapsed := time.Since(begin)

			Convey("Then the in-flight job drains and Stop returns promptly", func() {
				So(elapsed, ShouldBeLessThan, 2*time.Second)
				info, err := svc.Status(ctx, id)
				So(err, ShouldBeNil)
				So(info.Status, ShouldEqual, model.JobComplete)
				res, err := svc.Result(ctx, id)
				So(err, ShouldBeNil)
				So(res.Matches, ShouldHaveLength, 1)
			})

			Convey("Then new submissions are refused", func() {
				_, _, err := svc.Submit(ctx, model.Job{Task: fixedTask})
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}
