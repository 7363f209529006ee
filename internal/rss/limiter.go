package rss

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Concurrency settings
const (
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

// hostSlot is the limiter state of one domain. refs counts callers between
// acquire and release; a slot with no refs is kept only while its delay runs.
type hostSlot struct {
	sem         chan struct{}
	refs        int
	lastRequest time.Time
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
// Domains come from client queries, so idle slots are evicted on release.
type domainLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostSlot
	delay time.Duration
	now   func() time.Time
}

// newDomainLimiter creates a new per-domain rate limiter.
func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{
		hosts: make(map[string]*hostSlot),
		delay: delay,
		now:   time.Now,
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
// Every successful acquire must be paired with release.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	slot, ok := dl.hosts[domain]
	if !ok {
		slot = &hostSlot{sem: make(chan struct{}, MaxConcurrencyPerDomain)}
		dl.hosts[domain] = slot
	}
	slot.refs++
	dl.mu.Unlock()

	// Acquire semaphore slot
	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		dl.abandon(domain, slot, false)
		return ctx.Err()
	}

	// Enforce delay between requests to same domain
	dl.mu.Lock()
	lastReq := slot.lastRequest
	now := dl.now()
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		elapsed := now.Sub(lastReq)
		if elapsed < dl.delay {
			timer := time.NewTimer(dl.delay - elapsed)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				dl.abandon(domain, slot, true)
				return ctx.Err()
			}
		}
	}

	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	now := dl.now()
	if slot, ok := dl.hosts[domain]; ok {
		slot.lastRequest = now
		<-slot.sem
		slot.refs--
	}
	dl.evictIdle(now)
}

// abandon undoes a failed acquire. held reports whether the semaphore was taken.
func (dl *domainLimiter) abandon(domain string, slot *hostSlot, held bool) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if held {
		<-slot.sem
	}
	slot.refs--
	dl.evictIdle(dl.now())
}

// evictIdle drops slots nobody holds or waits on whose delay has passed.
// Callers hold dl.mu.
func (dl *domainLimiter) evictIdle(now time.Time) {
	for domain, slot := range dl.hosts {
		if slot.refs == 0 && now.Sub(slot.lastRequest) >= dl.delay {
			delete(dl.hosts, domain)
		}
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL // fallback to full URL
	}
	return u.Host
}
