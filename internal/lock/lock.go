// Package lock provides the run lock that keeps queue processors in
// different processes from working the same batch at once.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock is held by another process")

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases that expire after ttl unless released earlier.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// NopLocker always grants the lock. Used when no Redis is configured.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return nopLease{}, nil
}

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{now: time.Now, leases: make(map[string]localEntry)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.leases[key]; held && now.Before(e.expires) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	l.leases[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: token}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  string
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if e, ok := l.locker.leases[l.key]; ok && e.token == l.token {
		delete(l.locker.leases, l.key)
	}
	return nil
}
