package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the delay applied after a failed credential check
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

// TimingDelay slows failed PIN attempts so that wrong-PIN and unknown-user
// responses take a similar time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

func cryptoRandIntn(max int64) int64 {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Delay returns the duration the next failure should wait
func (td *TimingDelay) Delay() time.Duration {
	if td == nil {
		return 0
	}
	return td.config.BaseDelay + time.Duration(cryptoRandIntn(int64(td.config.RandomDelay)))
}

// WaitFrom sleeps until at least Delay() has elapsed since start, or ctx is done
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time) {
	remaining := td.Delay() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
