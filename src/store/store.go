package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/monetiq/realtime/src/types"
	"github.com/rs/zerolog"
)

// Mutator informs the server of notification mutations. The store applies
// every mutation optimistically and rolls it back when the server rejects
// it. A nil Mutator keeps mutations local (tests, offline mode).
type Mutator interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Store is the ordered, deduplicated collection of notification records,
// driven by push events and periodic reconciliation pulls. Records are kept
// descending by creation time and the unread counter always matches the
// number of unread records.
type Store struct {
	mu      sync.Mutex
	records []types.Notification // descending by CreatedAt
	index   map[string]int       // id -> position in records
	unread  int
	remote  Mutator
	logger  zerolog.Logger
}

// New creates an empty store.
func New(remote Mutator, logger zerolog.Logger) *Store {
	return &Store{
		index:  make(map[string]int),
		remote: remote,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// HandlePushed inserts a notification delivered by push. A record whose id
// is already present is left untouched rather than duplicated. Reports
// whether the record was inserted.
func (s *Store) HandlePushed(n types.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[n.ID]; ok {
		return false
	}
	s.insertLocked(n)
	if !n.Read {
		s.unread++
	}
	return true
}

// Reconcile merges a page pulled from the authoritative server list.
// Records absent from the store are added; records present in both are
// updated in place. Only a complete page may remove records, so a partial
// page never discards notifications it simply did not include. The unread
// counter is recomputed from the merged set.
func (s *Store) Reconcile(page types.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(page.Records))
	for _, sr := range page.Records {
		if sr.ID == "" {
			continue
		}
		seen[sr.ID] = true
		pos, ok := s.index[sr.ID]
		if !ok {
			s.insertLocked(sr)
			continue
		}
		local := &s.records[pos]
		// A server record marked read always wins. One claiming unread only
		// wins on a complete page, so a poll response raced by a local
		// mark-read cannot flip the record back.
		read, readAt := local.Read, local.ReadAt
		if sr.Read || page.Complete {
			read, readAt = sr.Read, sr.ReadAt
		}
		*local = sr
		local.Read, local.ReadAt = read, readAt
	}

	if page.Complete {
		kept := s.records[:0]
		for _, r := range s.records {
			if seen[r.ID] {
				kept = append(kept, r)
			}
		}
		s.records = kept
	}

	s.resortLocked()
	s.recountLocked()
}

// MarkRead flips a record to read, informing the server. Reports false when
// the id is unknown or the server rejects the mutation, in which case the
// local change is rolled back.
func (s *Store) MarkRead(ctx context.Context, id string) bool {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if s.records[pos].Read {
		s.mu.Unlock()
		return true
	}
	now := time.Now()
	s.records[pos].Read = true
	s.records[pos].ReadAt = &now
	s.unread--
	if s.unread < 0 {
		s.unread = 0
	}
	s.mu.Unlock()

	if s.remote == nil {
		return true
	}
	if err := s.remote.MarkRead(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("mark read rejected, rolling back")
		s.mu.Lock()
		if pos, ok := s.index[id]; ok && s.records[pos].Read {
			s.records[pos].Read = false
			s.records[pos].ReadAt = nil
			s.unread++
		}
		s.mu.Unlock()
		return false
	}
	return true
}

// MarkAllRead flips every record to read. On server rejection the previous
// per-record state is restored.
func (s *Store) MarkAllRead(ctx context.Context) bool {
	s.mu.Lock()
	was := make(map[string]*time.Time)
	now := time.Now()
	for i := range s.records {
		if !s.records[i].Read {
			was[s.records[i].ID] = s.records[i].ReadAt
			s.records[i].Read = true
			s.records[i].ReadAt = &now
		}
	}
	s.unread = 0
	s.mu.Unlock()

	if s.remote == nil || len(was) == 0 {
		return true
	}
	if err := s.remote.MarkAllRead(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("mark all read rejected, rolling back")
		s.mu.Lock()
		for i := range s.records {
			if readAt, ok := was[s.records[i].ID]; ok {
				s.records[i].Read = false
				s.records[i].ReadAt = readAt
			}
		}
		s.recountLocked()
		s.mu.Unlock()
		return false
	}
	return true
}

// Delete removes a record, informing the server. Deleting an unknown id
// reports false and changes nothing; deleting twice is safe.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	removed := s.records[pos]
	s.records = append(s.records[:pos], s.records[pos+1:]...)
	s.reindexLocked()
	if !removed.Read {
		s.unread--
		if s.unread < 0 {
			s.unread = 0
		}
	}
	s.mu.Unlock()

	if s.remote == nil {
		return true
	}
	if err := s.remote.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("delete rejected, rolling back")
		s.mu.Lock()
		if _, ok := s.index[id]; !ok {
			s.insertLocked(removed)
			if !removed.Read {
				s.unread++
			}
		}
		s.mu.Unlock()
		return false
	}
	return true
}

// Clear empties the store. Used on session teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.index = make(map[string]int)
	s.unread = 0
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// List returns a snapshot of all records, newest first.
func (s *Store) List() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Notification, len(s.records))
	copy(out, s.records)
	return out
}

// Latest returns the most recent notification, or nil when empty.
func (s *Store) Latest() *types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	n := s.records[0]
	return &n
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// insertLocked places a record keeping descending CreatedAt order.
func (s *Store) insertLocked(n types.Notification) {
	pos := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].CreatedAt.Before(n.CreatedAt)
	})
	s.records = append(s.records, types.Notification{})
	copy(s.records[pos+1:], s.records[pos:])
	s.records[pos] = n
	s.reindexLocked()
}

func (s *Store) resortLocked() {
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].CreatedAt.After(s.records[j].CreatedAt)
	})
	s.reindexLocked()
}

func (s *Store) reindexLocked() {
	s.index = make(map[string]int, len(s.records))
	for i, r := range s.records {
		s.index[r.ID] = i
	}
}

func (s *Store) recountLocked() {
	s.unread = 0
	for _, r := range s.records {
		if !r.Read {
			s.unread++
		}
	}
}
