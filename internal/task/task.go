// Package task loads and validates comparison units from YAML files.
package task

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/okian/promptelo/internal/domain/model"
)

// ErrInvalid marks a task that failed validation.
var ErrInvalid = errors.New("invalid task")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a task from a YAML file and validates it.
func Load(path string) (model.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Task{}, fmt.Errorf("read task %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML task and validates it.
func Parse(data []byte) (model.Task, error) {
	var t model.Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return model.Task{}, fmt.Errorf("decode task: %w", err)
	}
	t = Clean(t)
	if err := Validate(t); err != nil {
		return model.Task{}, err
	}
	return t, nil
}

// Clean trims whitespace around the description, test cases and candidates.
func Clean(t model.Task) model.Task {
	t.Description = strings.TrimSpace(t.Description)
	t.TestCases = trimAll(t.TestCases)
	t.Candidates = trimAll(t.Candidates)
	return t
}

func trimAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// Validate checks the description is set and there is at least one non-empty
// test case. Errors wrap ErrInvalid.
func Validate(t model.Task) error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
