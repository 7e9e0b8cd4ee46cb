package judge_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/okian/promptelo/internal/capability"
	"github.com/okian/promptelo/internal/domain/judge"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeEvaluator struct {
	text    string
	backend string
	err     error
	got     []capability.Request
}

func (f *fakeEvaluator) Complete(_ context.Context, req capability.Request) (capability.Response, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return capability.Response{}, f.err
	}
	return capability.Response{Text: f.text, Backend: f.backend}, nil
}

var (
	task = model.Task{
		Description: "Explain how to store fresh basil.",
		TestCases:   []string{"Kitchen, summer", "Fridge only"},
	}
	candA = model.Candidate{ID: "P1", Content: "Be concise."}
	candB = model.Candidate{ID: "P2", Content: "Be thorough."}
)

func TestParseVerdict(t *testing.T) {
	Convey("Given well-formed evaluator output", t, func() {
		outcome, reason, parsed := judge.ParseVerdict("WINNER: A\nREASON: clearer structure")
		So(outcome, ShouldEqual, model.OutcomeA)
		So(reason, ShouldEqual, "clearer structure")
		So(parsed, ShouldBeTrue)
	})

	Convey("Given output without a WINNER field", t, func() {
		outcome, reason, parsed := judge.ParseVerdict("I think both are fine.")
		So(outcome, ShouldEqual, model.OutcomeDraw)
		So(reason, ShouldBeEmpty)
		So(parsed, ShouldBeFalse)
	})

	Convey("Given lowercase fields surrounded by prose", t, func() {
		outcome, reason, parsed := judge.ParseVerdict("Some preamble.\nWINNER: draw\nREASON: tie")
		So(outcome, ShouldEqual, model.OutcomeDraw)
		So(reason, ShouldEqual, "tie")
		So(parsed, ShouldBeTrue)
	})

	Convey("Given a B verdict with trailing text on other lines", t, func() {
		outcome, reason, _ := judge.ParseVerdict("winner:   b\nreason: fewer assumptions\nThanks!")
		So(outcome, ShouldEqual, model.OutcomeB)
		So(reason, ShouldEqual, "fewer assumptions")
	})

	Convey("Given a token that only starts with a side letter", t, func() {
		outcome, _, parsed := judge.ParseVerdict("WINNER: Apple")
		So(outcome, ShouldEqual, model.OutcomeDraw)
		So(parsed, ShouldBeFalse)
	})

	Convey("Given a reason that starts on the next line", t, func() {
		outcome, reason, parsed := judge.ParseVerdict("WINNER: A\nREASON:\nclearer structure\n")
		So(outcome, ShouldEqual, model.OutcomeA)
		So(reason, ShouldEqual, "clearer structure")
		So(parsed, ShouldBeTrue)
	})

	Convey("Given an empty reason field", t, func() {
		_, reason, _ := judge.ParseVerdict("WINNER: B\nREASON:   ")
		So(reason, ShouldBeEmpty)
	})
}

func TestTruncate(t *testing.T) {
	Convey("Given text within the limit", t, func() {
		So(judge.Truncate("  short  ", 10), ShouldEqual, "short")
	})

	Convey("Given text over the limit", t, func() {
		out := judge.Truncate("абвгдежзик", 4)
		So(out, ShouldEqual, "абвг…")
	})

	Convey("Given a non-positive limit", t, func() {
		So(judge.Truncate("unchanged", 0), ShouldEqual, "unchanged")
	})
}

func TestJudge_Decide(t *testing.T) {
	Convey("Given an evidence-mode judge", t, func() {
		eval := &fakeEvaluator{text: "Analysis...\nWINNER: B\nREASON: " + strings.Repeat("x", 300), backend: "o3-mini"}
		j := judge.New(eval, judge.WithLogger(logger.Nop()), judge.WithAnswerLimit(5))
		evidence := model.Evidence{
			"P1": {"answer one is long", "a2"},
			"P2": {"b1", "b2"},
		}

		Convey("When deciding", func() {
			v, err := j.Decide(context.Background(), task, candA, candB, evidence)

			Convey("Then the verdict is parsed and the reason truncated", func() {
				So(err, ShouldBeNil)
				So(v.Outcome, ShouldEqual, model.OutcomeB)
				So(v.Parsed, ShouldBeTrue)
				So(v.Backend, ShouldEqual, "o3-mini")
				So([]rune(v.Reason), ShouldHaveLength, judge.DefaultReasonLimit+1)
				So(v.Note(), ShouldStartWith, "[judge=o3-mini] xxx")
			})

			Convey("Then the evaluator saw both answers per test at temperature 0", func() {
				So(eval.got, ShouldHaveLength, 1)
				p := eval.got[0].Prompt
				So(p, ShouldContainSubstring, "TEST #1:\nKitchen, summer")
				So(p, ShouldContainSubstring, "TEST #2:\nFridge only")
				So(p, ShouldContainSubstring, "ANSWER A:\nanswe…")
				So(p, ShouldContainSubstring, "ANSWER B:\nb2")
				So(p, ShouldNotContainSubstring, "PROMPT A:")
				So(*eval.got[0].Temperature, ShouldEqual, float32(0))
			})
		})

		Convey("When one side has no answers", func() {
			_, err := j.Decide(context.Background(), task, candA, model.Candidate{ID: "P9", Content: "x"}, evidence)

			Convey("Then the prompt falls back to prompt-only", func() {
				So(err, ShouldBeNil)
				So(eval.got[0].Prompt, ShouldContainSubstring, "PROMPT A:\nBe concise.")
				So(eval.got[0].Prompt, ShouldNotContainSubstring, "TEST #1")
			})
		})
	})

	Convey("Given a prompt-only judge and an unparseable response", t, func() {
		eval := &fakeEvaluator{text: "Both look reasonable to me.", backend: "o4-mini"}
		j := judge.New(eval, judge.WithLogger(logger.Nop()), judge.WithMode(model.JudgeModePromptOnly))

		v, err := j.Decide(context.Background(), task, candA, candB, nil)

		Convey("Then the match is an implicit draw", func() {
			So(err, ShouldBeNil)
			So(j.Mode(), ShouldEqual, model.JudgeModePromptOnly)
			So(v.Outcome, ShouldEqual, model.OutcomeDraw)
			So(v.Parsed, ShouldBeFalse)
			So(eval.got[0].Prompt, ShouldContainSubstring, "PROMPT B:\nBe thorough.")
		})
	})

	Convey("Given an evaluator that is exhausted", t, func() {
		exhausted := &capability.ExhaustedError{Capability: capability.Evaluator, Backends: []string{"o3-mini"}}
		j := judge.New(&fakeEvaluator{err: exhausted}, judge.WithLogger(logger.Nop()))

		_, err := j.Decide(context.Background(), task, candA, candB, nil)

		Convey("Then the error propagates with the pair named", func() {
			So(errors.Is(err, capability.ErrExhausted), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "P1 vs P2")
		})
	})
}
