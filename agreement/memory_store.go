package agreement

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Each agreement is kept as its encoded
// document so callers never share slices with the store, and each entry has
// its own lock so updates to different agreements do not contend.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*memoryEntry
	apps     map[string]string
	offers   map[string]string
	workLogs map[string]string
}

type memoryEntry struct {
	mu  sync.Mutex
	doc []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		apps:     make(map[string]string),
		offers:   make(map[string]string),
		workLogs: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, a Agreement) (Agreement, error) {
	if err := ctx.Err(); err != nil {
		return Agreement{}, err
	}
	if a.ID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing agreement id")
	}
	a.Version = 1
	doc, err := json.Marshal(a)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[a.ID]; ok {
		return Agreement{}, fmt.Errorf("agreement: id %s already stored", a.ID)
	}
	if a.ApplicationID != "" {
		if _, ok := s.apps[a.ApplicationID]; ok {
			return Agreement{}, ErrDuplicateAgreement
		}
	}
	if a.OfferID != "" {
		if _, ok := s.offers[a.OfferID]; ok {
			return Agreement{}, ErrDuplicateAgreement
		}
	}
	for _, wl := range a.WorkLogs {
		if _, ok := s.workLogs[wl.ID]; ok {
			return Agreement{}, fmt.Errorf("%w: %s", ErrDuplicateWorkLog, wl.ID)
		}
	}

	s.entries[a.ID] = &memoryEntry{doc: doc}
	if a.ApplicationID != "" {
		s.apps[a.ApplicationID] = a.ID
	}
	if a.OfferID != "" {
		s.offers[a.OfferID] = a.ID
	}
	for _, wl := range a.WorkLogs {
		s.workLogs[wl.ID] = a.ID
	}
	return decodeDocument(doc)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Agreement, error) {
	if err := ctx.Err(); err != nil {
		return Agreement{}, err
	}
	e, err := s.entry(id)
	if err != nil {
		return Agreement{}, err
	}
	e.mu.Lock()
	doc := e.doc
	e.mu.Unlock()
	return decodeDocument(doc)
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*Agreement) error) (Agreement, error) {
	if err := ctx.Err(); err != nil {
		return Agreement{}, err
	}
	e, err := s.entry(id)
	if err != nil {
		return Agreement{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := decodeDocument(e.doc)
	if err != nil {
		return Agreement{}, err
	}
	known := workLogIDs(current)

	next, err := decodeDocument(e.doc)
	if err != nil {
		return Agreement{}, err
	}
	if err := fn(&next); err != nil {
		return Agreement{}, err
	}
	next.Version = current.Version + 1

	body, err := json.Marshal(next)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: marshal document: %w", err)
	}

	var added []string
	for _, wl := range next.WorkLogs {
		if _, ok := known[wl.ID]; !ok {
			added = append(added, wl.ID)
		}
	}
	if len(added) > 0 {
		s.mu.Lock()
		for _, wlID := range added {
			if owner, ok := s.workLogs[wlID]; ok && owner != id {
				s.mu.Unlock()
				return Agreement{}, fmt.Errorf("%w: %s belongs to %s", ErrDuplicateWorkLog, wlID, owner)
			}
		}
		for _, wlID := range added {
			s.workLogs[wlID] = id
		}
		s.mu.Unlock()
	}

	e.doc = body
	return decodeDocument(body)
}

func (s *MemoryStore) ListByParty(ctx context.Context, userID string) ([]Agreement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Agreement, 0, 8)
	for _, e := range entries {
		e.mu.Lock()
		doc := e.doc
		e.mu.Unlock()
		a, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		if a.HasParty(userID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) FindByWorkLog(ctx context.Context, workLogID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.workLogs[workLogID]
	if !ok {
		return "", fmt.Errorf("%w: work log %s", ErrNotFound, workLogID)
	}
	return id, nil
}

func (s *MemoryStore) ExistsForApplication(ctx context.Context, applicationID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.apps[applicationID]
	return ok, nil
}

func (s *MemoryStore) ExistsForOffer(ctx context.Context, offerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.offers[offerID]
	return ok, nil
}

func (s *MemoryStore) entry(id string) (*memoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: agreement %s", ErrNotFound, id)
	}
	return e, nil
}
