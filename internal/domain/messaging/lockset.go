package messaging

import "sync"

// lockset hands out one mutex per conversation. Entries are dropped once no
// goroutine holds or waits on them.
type lockset struct {
	mu    sync.Mutex
	locks map[ConversationKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newLockset() *lockset {
	return &lockset{locks: make(map[ConversationKey]*keyLock)}
}

// Lock blocks until k is held and returns the matching unlock.
func (s *lockset) Lock(k ConversationKey) func() {
	s.mu.Lock()
	l, ok := s.locks[k]
	if !ok {
		l = &keyLock{}
		s.locks[k] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, k)
		}
		s.mu.Unlock()
	}
}

func (s *lockset) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
