package service

import (
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

const defaultAuditInterval = 30 * time.Second

// AuditorService periodically re-analyzes the firing history for biases and
// caches the latest report so pipeline frames never pay for an analysis.
type AuditorService struct {
	tracker  *TrackerService
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	latest *domain.BiasAnalysis

	stopCh  chan struct{}
	stopped sync.WaitGroup
	running bool
	runMu   sync.Mutex
}

func NewAuditorService(tracker *TrackerService, interval time.Duration, logger *zap.Logger) *AuditorService {
	if interval <= 0 {
		interval = defaultAuditInterval
	}
	return &AuditorService{
		tracker:  tracker,
		logger:   logger,
		interval: interval,
	}
}

// Start launches the periodic audit loop. Safe to call once.
func (s *AuditorService) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stopped.Add(1)

	go func() {
		defer s.stopped.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("bias auditor started", zap.Duration("interval", s.interval))
		for {
			select {
			case <-ticker.C:
				s.runAudit()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the audit loop and waits for it to exit.
func (s *AuditorService) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.stopped.Wait()
	s.running = false
	s.logger.Info("bias auditor stopped")
}

// Latest returns the most recent cached report, or nil before the first run.
func (s *AuditorService) Latest() *domain.BiasAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// RunNow forces an immediate audit outside the ticker cadence and returns
// the fresh report.
func (s *AuditorService) RunNow() *domain.BiasAnalysis {
	s.runAudit()
	return s.Latest()
}

func (s *AuditorService) runAudit() {
	analysis := s.tracker.AnalyzeBiases(0)

	s.mu.Lock()
	s.latest = analysis
	s.mu.Unlock()

	if analysis.HasCriticalBias {
		s.logger.Warn("critical decision bias detected",
			zap.Int("biases", len(analysis.Biases)),
			zap.Float64("diversity", analysis.DiversityScore),
			zap.String("most_used", string(analysis.MostUsedEffect)))
		return
	}
	s.logger.Debug("bias audit complete",
		zap.Int("biases", len(analysis.Biases)),
		zap.Float64("diversity", analysis.DiversityScore),
		zap.Int("sample_size", analysis.SampleSize))
}
