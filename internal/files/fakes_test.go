package files

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

type memRepo struct {
	mu        sync.Mutex
	records   map[string]*FileRecord
	createErr error
	deleteErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: make(map[string]*FileRecord)}
}

func (r *memRepo) Create(_ context.Context, file *FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.records[file.ID]; ok {
		return errors.New("duplicate id")
	}
	copied := *file
	r.records[file.ID] = &copied
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *file
	return &copied, nil
}

func (r *memRepo) ListExpired(_ context.Context, cutoff time.Time) ([]*FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*FileRecord
	for _, file := range r.records {
		if file.CreatedAt.Before(cutoff) {
			copied := *file
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.records[id]; !ok {
		return ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type memStorage struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	modTimes map[string]time.Time
	saveErr  error
	now      func() time.Time
}

func newMemStorage() *memStorage {
	return &memStorage{
		blobs:    make(map[string][]byte),
		modTimes: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (s *memStorage) Save(name string, content io.Reader) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; ok {
		return 0, errors.New("blob exists")
	}
	s.blobs[name] = data
	s.modTimes[name] = s.now()
	return int64(len(data)), nil
}

func (s *memStorage) Open(name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, name)
	delete(s.modTimes, name)
	return nil
}

func (s *memStorage) RemoveOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for name, mod := range s.modTimes {
		if mod.Before(cutoff) {
			delete(s.blobs, name)
			delete(s.modTimes, name)
			removed++
		}
	}
	return removed, nil
}

func (s *memStorage) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[name]
	return ok
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

type event struct {
	subject string
	file    *FileRecord
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, subject string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	file, _ := payload.(*FileRecord)
	n.events = append(n.events, event{subject: subject, file: file})
	return n.err
}

func (n *recordingNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.subject)
	}
	return out
}
