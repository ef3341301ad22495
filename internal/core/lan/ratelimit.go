package lan

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// rateLimiter 按设备 ID 抑制冷却窗口内的重复连接尝试
//
// 表大小有上限，超出时淘汰最久未使用的条目。
type rateLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	cooldown time.Duration
	last     *lru.Cache[string, time.Time]
}

func newRateLimiter(clk clock.Clock, cooldown time.Duration, maxEntries int) *rateLimiter {
	cache, err := lru.New[string, time.Time](maxEntries)
	if err != nil {
		// 仅在 maxEntries <= 0 时出错
		cache, _ = lru.New[string, time.Time](256)
	}
	return &rateLimiter{
		clock:    clk,
		cooldown: cooldown,
		last:     cache,
	}
}

// limited 冷却窗口内返回 true；否则记录本次尝试并返回 false
func (r *rateLimiter) limited(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if t, ok := r.last.Get(deviceID); ok && now.Sub(t) < r.cooldown {
		return true
	}
	r.last.Add(deviceID, now)
	return false
}

func (r *rateLimiter) len() int {
	return r.last.Len()
}
