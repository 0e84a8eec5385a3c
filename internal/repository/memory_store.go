package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"staybook/internal/availability"
	"staybook/internal/domain"
	"staybook/internal/models"
)

// MemoryStore is an in-process Store. Units of work on one property are
// serialized by a per-property mutex; their writes are staged and applied
// together on success.
type MemoryStore struct {
	mu         sync.RWMutex
	properties map[int64]*models.Property
	bookings   map[int64]*models.Booking
	outbox     map[int64]*models.OutboxTask

	nextPropertyID int64
	nextBookingID  int64
	nextOutboxID   int64

	propertyLocks sync.Map // int64 -> *sync.Mutex
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		properties: make(map[int64]*models.Property),
		bookings:   make(map[int64]*models.Booking),
		outbox:     make(map[int64]*models.OutboxTask),
		now:        time.Now,
	}
}

func (s *MemoryStore) GetProperty(_ context.Context, id int64) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, domain.PropertyNotFound(id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProperties(_ context.Context) ([]*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Property, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateProperty(_ context.Context, p *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.nextPropertyID++
		p.ID = s.nextPropertyID
	} else if _, exists := s.properties[p.ID]; exists {
		return fmt.Errorf("property %d already exists", p.ID)
	}
	if p.ID > s.nextPropertyID {
		s.nextPropertyID = p.ID
	}

	now := s.now()
	p.NumberOfUnits = p.Units()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	s.properties[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetBooking(_ context.Context, id int64) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.BookingNotFound(id)
	}
	c := *b
	return &c, nil
}

func (s *MemoryStore) ListBookingsByUser(_ context.Context, userID int64) ([]*models.Booking, error) {
	return s.filterBookings(func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (s *MemoryStore) ListBookingsByProperty(_ context.Context, propertyID int64) ([]*models.Booking, error) {
	return s.filterBookings(func(b *models.Booking) bool { return b.PropertyID == propertyID }), nil
}

func (s *MemoryStore) CountOverlapping(_ context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return availability.CountOverlapping(s.bookingSlice(nil), propertyID, r, excludeBookingID), nil
}

func (s *MemoryStore) WithinPropertyTx(ctx context.Context, propertyID int64, fn func(tx domain.Tx) error) error {
	lock := s.propertyLock(propertyID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		store:      s,
		properties: make(map[int64]*models.Property),
		bookings:   make(map[int64]*models.Booking),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) GetPendingOutboxTasks(_ context.Context, limit int) ([]models.OutboxTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var tasks []models.OutboxTask
	for _, t := range s.outbox {
		if t.Status != models.OutboxPending && t.Status != models.OutboxRetry {
			continue
		}
		if t.NextRetryAt != nil && t.NextRetryAt.After(now) {
			continue
		}
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func (s *MemoryStore) UpdateOutboxTaskStatus(_ context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.outbox[id]
	if !ok {
		return fmt.Errorf("outbox task %d not found", id)
	}
	t.Status = status
	t.LastError = &errMsg
	t.NextRetryAt = nextRetryAt
	switch status {
	case models.OutboxRetry:
		t.RetryCount++
	case models.OutboxCompleted, models.OutboxFailed:
		now := s.now()
		t.ProcessedAt = &now
	}
	return nil
}

func (s *MemoryStore) propertyLock(id int64) *sync.Mutex {
	l, _ := s.propertyLocks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (s *MemoryStore) filterBookings(keep func(*models.Booking) bool) []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if keep(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sortBookings(out)
	return out
}

// bookingSlice returns committed bookings with staged ones taking precedence.
// Caller holds s.mu.
func (s *MemoryStore) bookingSlice(staged map[int64]*models.Booking) []*models.Booking {
	out := make([]*models.Booking, 0, len(s.bookings)+len(staged))
	for id, b := range s.bookings {
		if _, ok := staged[id]; ok {
			continue
		}
		out = append(out, b)
	}
	for _, b := range staged {
		out = append(out, b)
	}
	return out
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range tx.properties {
		s.properties[id] = p
	}
	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for _, t := range tx.outbox {
		s.outbox[t.ID] = t
	}
}

func sortBookings(bookings []*models.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if !bookings[i].CheckIn.Equal(bookings[j].CheckIn) {
			return bookings[i].CheckIn.Before(bookings[j].CheckIn)
		}
		return bookings[i].ID < bookings[j].ID
	})
}

type memTx struct {
	store      *MemoryStore
	properties map[int64]*models.Property
	bookings   map[int64]*models.Booking
	outbox     []*models.OutboxTask
}

func (t *memTx) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	if p, ok := t.properties[id]; ok {
		return p.Clone(), nil
	}
	return t.store.GetProperty(ctx, id)
}

func (t *memTx) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		c := *b
		return &c, nil
	}
	return t.store.GetBooking(ctx, id)
}

func (t *memTx) CountOverlapping(_ context.Context, propertyID int64, r models.DateRange, excludeBookingID int64) (int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return availability.CountOverlapping(t.store.bookingSlice(t.bookings), propertyID, r, excludeBookingID), nil
}

func (t *memTx) InsertBooking(_ context.Context, b *models.Booking) error {
	t.store.mu.Lock()
	t.store.nextBookingID++
	b.ID = t.store.nextBookingID
	now := t.store.now()
	t.store.mu.Unlock()

	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	c := *b
	t.bookings[b.ID] = &c
	return nil
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, b *models.Booking, status models.BookingStatus) error {
	current, err := t.GetBooking(ctx, b.ID)
	if err != nil {
		return err
	}
	if current.Version != b.Version {
		return domain.ErrConcurrentModification
	}

	b.Status = status
	b.Version++
	b.UpdatedAt = t.store.now()
	c := *b
	t.bookings[b.ID] = &c
	return nil
}

func (t *memTx) SaveAvailability(ctx context.Context, p *models.Property) error {
	current, err := t.GetProperty(ctx, p.ID)
	if err != nil {
		return err
	}
	if current.Version != p.Version {
		return domain.ErrConcurrentModification
	}

	p.Version++
	p.UpdatedAt = t.store.now()
	t.properties[p.ID] = p.Clone()
	return nil
}

func (t *memTx) EnqueueOutbox(_ context.Context, task *models.OutboxTask) error {
	t.store.mu.Lock()
	t.store.nextOutboxID++
	task.ID = t.store.nextOutboxID
	now := t.store.now()
	t.store.mu.Unlock()

	if task.Status == "" {
		task.Status = models.OutboxPending
	}
	task.CreatedAt = now
	c := *task
	t.outbox = append(t.outbox, &c)
	return nil
}

var (
	_ domain.Store       = (*MemoryStore)(nil)
	_ domain.OutboxStore = (*MemoryStore)(nil)
	_ domain.Tx          = (*memTx)(nil)
)
