package server

import (
	"sync"
	"time"
)

// =============================================================================
// Fault Limiter for Malformed Frames
// =============================================================================

// FaultLimiter counts protocol faults (undecodable or oversized frames) per
// peer IP. A peer that reaches the limit within the window is refused at
// accept until the window expires. Well-formed traffic never counts.
//
// Flow:
//  1. Client connects
//  2. Check IsBlocked() - if true, close immediately
//  3. Read frames
//  4. On a malformed frame: RecordFault() and close the connection
type FaultLimiter struct {
	mu     sync.RWMutex
	faults map[string]*faultEntry
	limit  int           // faults before blocking
	window time.Duration // period over which faults are counted
	now    func() time.Time
}

type faultEntry struct {
	count     int       // faults seen in the current window
	resetTime time.Time // when this entry expires
}

// NewFaultLimiter creates a limiter. A limit of zero or less disables it.
func NewFaultLimiter(limit int, window time.Duration) *FaultLimiter {
	return &FaultLimiter{
		faults: make(map[string]*faultEntry),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// IsBlocked returns true if the IP has reached the fault limit.
func (fl *FaultLimiter) IsBlocked(ip string) bool {
	if fl.limit <= 0 {
		return false
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	entry, ok := fl.faults[ip]
	if !ok || fl.now().After(entry.resetTime) {
		return false
	}
	return entry.count >= fl.limit
}

// RecordFault records one malformed frame from ip.
func (fl *FaultLimiter) RecordFault(ip string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := fl.now()
	entry, ok := fl.faults[ip]
	if !ok || now.After(entry.resetTime) {
		fl.faults[ip] = &faultEntry{count: 1, resetTime: now.Add(fl.window)}
		return
	}
	entry.count++
}

// FaultCount returns the current fault count for an IP.
func (fl *FaultLimiter) FaultCount(ip string) int {
	fl.mu.RLock()
	defer fl.mu.RUnlock()

	entry, ok := fl.faults[ip]
	if !ok || fl.now().After(entry.resetTime) {
		return 0
	}
	return entry.count
}

// Cleanup drops expired entries.
func (fl *FaultLimiter) Cleanup() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	now := fl.now()
	for ip, entry := range fl.faults {
		if now.After(entry.resetTime) {
			delete(fl.faults, ip)
		}
	}
}
