package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anonchat/anonchat-backend/pkg/distributed"
	"go.uber.org/zap"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Sweeper 만료된 대기 엔트리를 주기적으로 정리
type Sweeper struct {
	purger   expiredPurger
	interval time.Duration
	logger   *zap.Logger

	locks   *distributed.RedisLockManager
	lockKey string

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSweeper(purger expiredPurger, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		purger:   purger,
		interval: interval,
		logger:   logger,
	}
}

// AttachLock 여러 인스턴스 중 한 곳만 tick마다 정리하도록 분산 락 사용
func (s *Sweeper) AttachLock(locks *distributed.RedisLockManager, key string) {
	s.locks = locks
	s.lockKey = key
}

// Start 정리 루프 시작
func (s *Sweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	// Stop 이후 다시 시작할 수 있도록 매번 새 채널
	stop := make(chan struct{})
	s.stopChan = stop
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Starting waiting pool sweeper", zap.Duration("interval", s.interval))

	go s.loop(stop)
}

// Stop 정리 루프 중지
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Waiting pool sweeper stopped")
}

func (s *Sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Failed to sweep waiting pool", zap.Error(err))
			}
			cancel()
		case <-stop:
			return
		}
	}
}

// RunOnce 한 번 정리. 다른 인스턴스가 이번 주기의 락을 잡았으면 건너뛴다.
// 성공한 경우 락은 TTL(=interval)까지 유지되어 주기당 한 번만 실행된다.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	var lock *distributed.RedisLock
	if s.locks != nil {
		var err error
		lock, err = s.locks.AcquireLock(ctx, s.lockKey, s.interval)
		if errors.Is(err, distributed.ErrLockNotAcquired) {
			s.logger.Debug("Sweep skipped, lock held by another instance")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
	}

	purged, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		if lock != nil {
			_ = lock.Release(ctx)
		}
		return purged, err
	}

	if purged > 0 {
		s.logger.Info("Purged expired waiting entries", zap.Int("count", purged))
	}
	return purged, nil
}
