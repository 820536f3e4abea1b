package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	ActionSendMessage        = "send_message"
	ActionCreateConversation = "create_conversation"
	ActionRequest            = "request"
)

// Rule is the token bucket for one action: Limit tokens per second, Burst capacity.
type Rule struct {
	Limit rate.Limit
	Burst int
}

// PerMinute builds a rule allowing n actions per minute with a burst of n.
func PerMinute(n int) Rule {
	if n <= 0 {
		return Rule{Limit: rate.Inf}
	}
	return Rule{Limit: rate.Every(time.Minute / time.Duration(n)), Burst: n}
}

// DefaultRules returns the gateway limits.
func DefaultRules(messagesPerMinute int) map[string]Rule {
	return map[string]Rule{
		ActionSendMessage:        PerMinute(messagesPerMinute),
		ActionCreateConversation: {Limit: rate.Every(12 * time.Second), Burst: 5},
		ActionRequest:            {Limit: rate.Every(100 * time.Millisecond), Burst: 50},
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one limiter per user and action.
type RateLimiter struct {
	rules    map[string]Rule
	fallback Rule
	buckets  map[string]*bucket
	mutex    sync.Mutex
	now      func() time.Time
}

func NewRateLimiter(rules map[string]Rule) *RateLimiter {
	return &RateLimiter{
		rules:    rules,
		fallback: PerMinute(20),
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow consumes one token for the user's action. When refused it returns the
// time until a token is available. A nil limiter allows everything.
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	if rl == nil {
		return true, 0
	}
	b := rl.bucket(userID, action)
	now := rl.now()

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Minute
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// GetStatus returns the tokens left and the bucket size for a user action.
func (rl *RateLimiter) GetStatus(userID, action string) (tokens int, maxTokens int) {
	rl.mutex.Lock()
	b, exists := rl.buckets[userID+":"+action]
	rl.mutex.Unlock()

	if !exists {
		return 0, 0
	}
	return int(b.limiter.TokensAt(rl.now())), b.limiter.Burst()
}

// Cleanup drops limiters that have not been used for an hour.
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) > time.Hour {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanupRoutine runs Cleanup every 30 minutes until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rl *RateLimiter) bucket(userID, action string) *bucket {
	key := userID + ":" + action

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		rule, ok := rl.rules[action]
		if !ok {
			rule = rl.fallback
		}
		b = &bucket{limiter: rate.NewLimiter(rule.Limit, rule.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b
}
