package engine

import (
	"sync"
	"time"

	"github.com/use-agent/readtrack/clock"
)

// domainEntry stores the engine that last served a domain.
type domainEntry struct {
	engineName string
	expiresAt  time.Time
}

// DomainMemory remembers which engine served each domain. Entries expire
// after the TTL.
type DomainMemory struct {
	mu    sync.Mutex
	store map[string]domainEntry
	ttl   time.Duration
	clk   clock.Clock
}

// NewDomainMemory creates a DomainMemory. clk may be nil.
func NewDomainMemory(ttl time.Duration, clk clock.Clock) *DomainMemory {
	if clk == nil {
		clk = clock.Real()
	}
	return &DomainMemory{store: make(map[string]domainEntry), ttl: ttl, clk: clk}
}

// Get returns the remembered engine for domain, or "" if none is current.
func (dm *DomainMemory) Get(domain string) string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	entry, ok := dm.store[domain]
	if !ok {
		return ""
	}
	if dm.clk.Now().After(entry.expiresAt) {
		delete(dm.store, domain)
		return ""
	}
	return entry.engineName
}

// Set records which engine served a domain. Expired entries are pruned.
func (dm *DomainMemory) Set(domain, engineName string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	now := dm.clk.Now()
	for d, e := range dm.store {
		if now.After(e.expiresAt) {
			delete(dm.store, d)
		}
	}
	dm.store[domain] = domainEntry{engineName: engineName, expiresAt: now.Add(dm.ttl)}
}

// Delete forgets a domain.
func (dm *DomainMemory) Delete(domain string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.store, domain)
}

// Len returns the number of remembered domains.
func (dm *DomainMemory) Len() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.store)
}
