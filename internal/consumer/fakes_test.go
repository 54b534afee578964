package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/models"
)

// memoryStore is an in-memory inventory whose units of work stage writes
// until Commit.
type memoryStore struct {
	mu       sync.Mutex
	products map[int]models.Product

	opened    int
	commits   int
	rollbacks int
	writes    int

	beginErr  error
	getErr    map[int]error
	updateErr error
	commitErr error
	panicOn   int
}

func newMemoryStore(products ...models.Product) *memoryStore {
	s := &memoryStore{products: map[int]models.Product{}, getErr: map[int]error{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memoryStore) factory(ctx context.Context) (UnitOfWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &memoryUnitOfWork{store: s, staged: map[int]int{}}, nil
}

func (s *memoryStore) stock(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].UnitsInStock
}

// released reports whether every opened unit of work was committed or
// rolled back.
func (s *memoryStore) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened == s.commits+s.rollbacks
}

type memoryUnitOfWork struct {
	store  *memoryStore
	staged map[int]int
	done   bool
}

func (u *memoryUnitOfWork) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	if u.store.panicOn != 0 && id == u.store.panicOn {
		panic(fmt.Sprintf("corrupt row for product %d", id))
	}
	if err := u.store.getErr[id]; err != nil {
		return nil, err
	}
	u.store.mu.Lock()
	p, ok := u.store.products[id]
	u.store.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if staged, ok := u.staged[id]; ok {
		p.UnitsInStock = staged
	}
	return &p, nil
}

func (u *memoryUnitOfWork) UpdateStock(ctx context.Context, id int, unitsInStock int) error {
	if u.store.updateErr != nil {
		return u.store.updateErr
	}
	u.staged[id] = unitsInStock
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if u.store.commitErr != nil {
		return u.store.commitErr
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for id, units := range u.staged {
		p := u.store.products[id]
		p.UnitsInStock = units
		u.store.products[id] = p
		u.store.writes++
	}
	u.store.commits++
	u.done = true
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	u.done = true
	return nil
}

func eventMessage(t *testing.T, event models.OrderPlacedEvent) messaging.Message {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return messaging.Message{
		MessageID:     fmt.Sprintf("msg-%d", event.OrderID),
		ContentType:   models.JSONContentType,
		Subject:       models.OrderPlacedSubject,
		Body:          body,
		DeliveryCount: 1,
	}
}

func rawMessage(body string) messaging.Message {
	return messaging.Message{
		MessageID:     "raw",
		ContentType:   models.JSONContentType,
		Subject:       models.OrderPlacedSubject,
		Body:          []byte(body),
		DeliveryCount: 1,
	}
}

// fakeDelivery records how it was settled.
type fakeDelivery struct {
	mu          sync.Mutex
	msg         messaging.Message
	settlements []string
	reason      string
	settled     chan struct{}
}

func newFakeDelivery(msg messaging.Message) *fakeDelivery {
	return &fakeDelivery{msg: msg, settled: make(chan struct{}, 1)}
}

func (d *fakeDelivery) Message() messaging.Message { return d.msg }

func (d *fakeDelivery) record(outcome string) error {
	d.mu.Lock()
	d.settlements = append(d.settlements, outcome)
	d.mu.Unlock()
	select {
	case d.settled <- struct{}{}:
	default:
	}
	return nil
}

func (d *fakeDelivery) Complete(ctx context.Context) error { return d.record("complete") }

func (d *fakeDelivery) Abandon(ctx context.Context) error { return d.record("abandon") }

func (d *fakeDelivery) DeadLetter(ctx context.Context, reason, description string) error {
	d.mu.Lock()
	d.reason = reason
	d.mu.Unlock()
	return d.record("dead_letter")
}

func (d *fakeDelivery) outcomes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.settlements...)
}

type fakeSource struct {
	deliveries chan messaging.Delivery
	queue      string
	prefetch   int
	err        error
}

func (s *fakeSource) Consume(ctx context.Context, queue string, prefetch int) (<-chan messaging.Delivery, error) {
	s.queue = queue
	s.prefetch = prefetch
	if s.err != nil {
		return nil, s.err
	}
	return s.deliveries, nil
}

type fakeCache struct {
	mu          sync.Mutex
	invalidated [][]int
	err         error
}

func (c *fakeCache) InvalidateProducts(ctx context.Context, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, append([]int(nil), ids...))
	return c.err
}
