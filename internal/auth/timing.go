package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig controls the artificial delay applied to failed logins
type TimingConfig struct {
	BaseDelayMs   int // fixed delay in milliseconds
	RandomDelayMs int // additional random jitter range in milliseconds
}

// TimingDelay equalizes response times across authentication failure paths
// so "unknown email" and "wrong password" are not distinguishable by
// latency.
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoRandIntn returns a random number in [0, max) from crypto/rand
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if jitter, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(jitter) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps on failure. Successful logins return immediately.
func (td *TimingDelay) Wait(success bool) {
	if success {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom sleeps only for the remainder of the target delay, counting
// time already spent since startTime.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if success {
		return
	}

	elapsed := time.Since(startTime)
	if target := td.target(); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
