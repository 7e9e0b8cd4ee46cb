package task_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/internal/task"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a task file on disk", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "task.yaml")
		body := `
description: "  Write usage constraints for blanched frozen vegetables  "
test_cases:
  - Requires freezer storage
  - " Needs a stable cold chain "
`
		So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)

		Convey("When loading", func() {
			got, err := task.Load(path)

			Convey("Then fields are decoded and trimmed", func() {
				So(err, ShouldBeNil)
				So(got.Description, ShouldEqual, "Write usage constraints for blanched frozen vegetables")
				So(got.TestCases, ShouldResemble, []string{"Requires freezer storage", "Needs a stable cold chain"})
				So(got.Candidates, ShouldBeNil)
			})
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := task.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		So(err, ShouldNotBeNil)
		So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
	})
}

func TestParse(t *testing.T) {
	Convey("Given a task with fixed candidates", t, func() {
		got, err := task.Parse([]byte("description: d\ntest_cases: [t1]\ncandidates: [one, two]\n"))
		So(err, ShouldBeNil)
		So(got.Candidates, ShouldResemble, []string{"one", "two"})
	})

	Convey("Given malformed YAML", t, func() {
		_, err := task.Parse([]byte("description: [unclosed"))
		So(err, ShouldNotBeNil)
		So(errors.Is(err, task.ErrInvalid), ShouldBeFalse)
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a task without a description", t, func() {
		err := task.Validate(model.Task{TestCases: []string{"t"}})
		So(errors.Is(err, task.ErrInvalid), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "Description")
	})

	Convey("Given a task without test cases", t, func() {
		err := task.Validate(model.Task{Description: "d"})
		So(errors.Is(err, task.ErrInvalid), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "TestCases")
	})

	Convey("Given a blank test case", t, func() {
		err := task.Validate(task.Clean(model.Task{Description: "d", TestCases: []string{"ok", "  "}}))
		So(errors.Is(err, task.ErrInvalid), ShouldBeTrue)
	})

	Convey("Given a valid task", t, func() {
		So(task.Validate(model.Task{Description: "d", TestCases: []string{"t"}}), ShouldBeNil)
	})
}
