// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scheduler runs the periodic ingestion trigger: a background loop
// that invokes one fetch cycle across all accounts at a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sellerdesk/sellerdesk/internal/ingest"
)

// Runner is the unit of work the scheduler triggers.
type Runner interface {
	RunAll(ctx context.Context) *ingest.Report
}

// Scheduler periodically triggers an ingestion cycle.
type Scheduler struct {
	runner   Runner
	interval time.Duration
}

// New creates a scheduler that triggers the runner at the given interval.
func New(runner Runner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// Run starts the trigger loop. It blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("ingestion scheduler starting", "interval", s.interval)

	// Do an initial cycle immediately
	s.cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ingestion scheduler stopping")
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	report := s.runner.RunAll(ctx)

	if report.TotalNew == 0 {
		slog.Debug("auto-fetch: no new messages")
		return
	}

	slog.Info("auto-fetch complete", "total_new", report.TotalNew)
	for _, r := range report.Results {
		if r.New > 0 {
			slog.Info("account new messages", "account", r.Account, "new", r.New)
		}
		if r.Err != "" {
			slog.Warn("account fetch error", "account", r.Account, "error", r.Err)
		}
	}
}
