package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/fitmind/voicecoach/domain/repositories"
)

const (
	defaultCleanupInterval = 30 * time.Minute
	initialCleanupDelay    = time.Minute
	cleanupTimeout         = 5 * time.Minute
)

// ConversationCleanup periodically expires stale chat histories
type ConversationCleanup struct {
	conversations repositories.ConversationRepository
	interval      time.Duration
	clock         clock.Clock
	logger        *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConversationCleanup creates a cleanup service running every interval
func NewConversationCleanup(conversations repositories.ConversationRepository, interval time.Duration, clk clock.Clock, logger *zap.Logger) *ConversationCleanup {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &ConversationCleanup{
		conversations: conversations,
		interval:      interval,
		clock:         clk,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *ConversationCleanup) Start() {
	ticker := s.clock.Ticker(s.interval)
	// Run initial cleanup shortly after startup
	initialTimer := s.clock.Timer(initialCleanupDelay)

	s.wg.Add(1)
	go s.cleanupLoop(ticker, initialTimer)
	s.logger.Info("Conversation cleanup service started", zap.Duration("interval", s.interval))
}

// Stop stops the cleanup loop and waits for a running pass to finish
func (s *ConversationCleanup) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.logger.Info("Conversation cleanup service stopped")
}

func (s *ConversationCleanup) cleanupLoop(ticker *clock.Ticker, initialTimer *clock.Timer) {
	defer s.wg.Done()
	defer ticker.Stop()
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

func (s *ConversationCleanup) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	s.logger.Debug("Starting conversation cleanup")

	if err := s.conversations.ExpireConversations(ctx); err != nil {
		s.logger.Error("Failed to expire conversations", zap.Error(err))
		return
	}

	s.logger.Debug("Conversation cleanup completed")
}
