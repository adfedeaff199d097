package chain

import (
	"fmt"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"
)

var accountsBucket = []byte("accounts")

// AccountStore holds the serialized record bytes of every program account,
// keyed by address. Reads return copies; writes land through Apply, which
// commits a whole instruction's account set atomically. When opened with a
// path the store is backed by a bbolt bucket so ledger state survives
// restarts; with an empty path it is memory-only (tests, devnet).
type AccountStore struct {
	mu    sync.RWMutex
	cache map[Pubkey][]byte
	db    *bolt.DB
}

// OpenAccountStore opens (or creates) the store at path. An empty path
// yields an in-memory store.
func OpenAccountStore(path string) (*AccountStore, error) {
	s := &AccountStore{cache: make(map[Pubkey][]byte)}
	if path == "" {
		return s, nil
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountsBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			pk, err := PubkeyFromBytes(k)
			if err != nil {
				return fmt.Errorf("corrupt account key: %w", err)
			}
			data := make([]byte, len(v))
			copy(data, v)
			s.cache[pk] = data
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	s.db = db
	return s, nil
}

// Close releases the underlying bbolt handle, if any.
func (s *AccountStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a copy of the record at addr, or (nil, false) if absent.
func (s *AccountStore) Get(addr Pubkey) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.cache[addr]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Has reports whether an account exists at addr.
func (s *AccountStore) Has(addr Pubkey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[addr]
	return ok
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Apply commits a set of account writes as one unit: either every record in
// writes is persisted and visible, or none is. This is the commit point of
// an instruction; handlers stage writes on decoded copies and call Apply
// only after all checks pass.
func (s *AccountStore) Apply(writes map[Pubkey][]byte) error {
	if len(writes) == 0 {
		return nil
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(accountsBucket)
			for addr, data := range writes {
				if err := b.Put(addr.Bytes(), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("persist accounts: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, data := range writes {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.cache[addr] = cp
	}
	return nil
}

// ForEach visits a snapshot of every stored account. The callback receives
// copies and may not mutate store state.
func (s *AccountStore) ForEach(fn func(addr Pubkey, data []byte) error) error {
	s.mu.RLock()
	snapshot := make(map[Pubkey][]byte, len(s.cache))
	for k, v := range s.cache {
		cp := make([]byte, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	s.mu.RUnlock()

	for addr, data := range snapshot {
		if err := fn(addr, data); err != nil {
			return err
		}
	}
	return nil
}

// LockTable serializes instruction execution per account set. The runtime
// contract is that two instructions sharing any account are totally ordered;
// Acquire takes a write lock on every address for the instruction's full
// duration, in sorted order so concurrent acquirers cannot deadlock.
type LockTable struct {
	mu    sync.Mutex
	locks map[Pubkey]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[Pubkey]*sync.Mutex)}
}

// Acquire locks every address and returns the release function.
func (lt *LockTable) Acquire(addrs ...Pubkey) (release func()) {
	// Dedup and sort for a global lock order.
	seen := make(map[Pubkey]bool, len(addrs))
	unique := make([]Pubkey, 0, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			unique = append(unique, a)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Less(unique[j]) })

	held := make([]*sync.Mutex, 0, len(unique))
	for _, a := range unique {
		lt.mu.Lock()
		m, ok := lt.locks[a]
		if !ok {
			m = &sync.Mutex{}
			lt.locks[a] = m
		}
		lt.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
