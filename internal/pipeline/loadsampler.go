// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package pipeline

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
)

// SystemLoad is a point-in-time snapshot of the host the producer is
// running on.
type SystemLoad struct {
	CPUPercent       float64
	DiskUsagePercent float64
	LoadAverage      float64
}

// LoadSampler polls system load on an interval so an operator can see
// bytes produced alongside host pressure — adapted from the teacher's
// SystemMonitor, narrowed to the metrics relevant to a producer deciding
// whether to ease off (CPU, disk, load average; memory omitted since
// this rewrite never buffers an entire backup set in RAM).
type LoadSampler struct {
	logger   *slog.Logger
	interval time.Duration

	mu    sync.RWMutex
	last  SystemLoad
	close chan struct{}
	wg    sync.WaitGroup
}

// NewLoadSampler builds a LoadSampler that refreshes every interval
// (default 15s if <= 0).
func NewLoadSampler(logger *slog.Logger, interval time.Duration) *LoadSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadSampler{
		logger:   logger.With("component", "pipeline.load_sampler"),
		interval: interval,
		close:    make(chan struct{}),
	}
}

// Start begins periodic sampling on its own goroutine.
func (s *LoadSampler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts sampling and waits for the goroutine to exit.
func (s *LoadSampler) Stop() {
	close(s.close)
	s.wg.Wait()
}

// Last returns the most recently collected sample.
func (s *LoadSampler) Last() SystemLoad {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *LoadSampler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.collect()
	for {
		select {
		case <-s.close:
			return
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *LoadSampler) collect() {
	var sample SystemLoad

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		sample.CPUPercent = pct[0]
	} else {
		s.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		sample.DiskUsagePercent = d.UsedPercent
	} else {
		s.logger.Debug("failed to collect disk stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		sample.LoadAverage = l.Load1
	} else {
		s.logger.Debug("failed to collect load stats", "error", err)
	}

	s.mu.Lock()
	s.last = sample
	s.mu.Unlock()
}
