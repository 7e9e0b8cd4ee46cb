package service

import (
	"github.com/okian/promptelo/internal/adapters/repository"
	"github.com/okian/promptelo/internal/domain/model"
	"github.com/okian/promptelo/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of tournament workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued tournaments.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the result store. Without it Start uses a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSettings sets the default run settings; jobs override non-zero fields.
func WithSettings(settings model.Settings) Option {
	return func(s *Service) {
		s.settings = mergeSettings(s.settings, settings)
	}
}

// WithLimits sets the judge's answer and reason truncation limits.
func WithLimits(answer, reason int) Option {
	return func(s *Service) {
		if answer > 0 {
			s.answerLimit = answer
		}
		if reason > 0 {
			s.reasonLimit = reason
		}
	}
}

// WithTemperatures sets the generation, answering and judging temperatures.
func WithTemperatures(gen, exec, judge float32) Option {
	return func(s *Service) {
		s.genTemperature = gen
		s.execTemperature = exec
		s.judgeTemperature = judge
	}
}
