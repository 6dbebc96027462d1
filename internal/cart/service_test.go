package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emmanuel-nwafor/foremade/domain"
	"github.com/emmanuel-nwafor/foremade/internal/cache"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	getCalls  int
	deleteErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{carts: make(map[string]*domain.Cart)}
}

func (m *mockRepo) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	c, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp, nil
}

func (m *mockRepo) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[cart.UserID] = cart
	return nil
}

func (m *mockRepo) AddItem(ctx context.Context, userID string, item domain.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		c = &domain.Cart{UserID: userID}
		m.carts[userID] = c
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity = item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

func (m *mockRepo) UpdateItemQuantity(ctx context.Context, userID string, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return ErrItemNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return ErrItemNotFound
}

func (m *mockRepo) RemoveItem(ctx context.Context, userID string, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return ErrCartNotFound
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}

func (m *mockRepo) DeleteCart(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.carts[userID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

type mockCache struct {
	mu      sync.Mutex
	data    map[string]*domain.Cart
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = cart
	return nil
}

func (m *mockCache) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, userID)
	return nil
}

func (m *mockCache) cached(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[userID]
	return ok
}

type mockProducts struct {
	products map[string]*domain.Product
	err      error
}

func (m *mockProducts) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func newTestService() (*CartService, *mockRepo, *mockCache, *mockProducts) {
	repo := newMockRepo()
	c := newMockCache()
	products := &mockProducts{products: map[string]*domain.Product{
		"p-1": {ID: "p-1", Name: "Ankara Tote", Stock: 5},
	}}
	return NewCartService(repo, c, products), repo, c, products
}

func TestGetCart_EmptyWhenMissing(t *testing.T) {
	svc, _, _, _ := newTestService()

	cart, err := svc.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", cart.UserID)
	assert.Empty(t, cart.Items)
}

func TestGetCart_PopulatesCache(t *testing.T) {
	svc, repo, c, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, repo.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 1}))

	_, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return c.cached("u1") }, time.Second, 10*time.Millisecond)

	_, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls, "second read is served from cache")
}

func TestAddItem_StockChecks(t *testing.T) {
	svc, repo, c, _ := newTestService()
	ctx := context.Background()

	err := svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	err = svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-404", Quantity: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	err = svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 6})
	assert.ErrorIs(t, err, ErrQuantityExceedsStock)

	require.NoError(t, svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 5}))
	assert.Len(t, repo.carts["u1"].Items, 1)
	assert.Equal(t, 1, c.deletes)
}

func TestAddItem_CatalogFailureIsNotNotFound(t *testing.T) {
	svc, _, _, products := newTestService()
	products.err = errors.New("connection refused")

	err := svc.AddItem(context.Background(), "u1", domain.CartItem{ProductID: "p-1", Quantity: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProductNotFound)
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	svc, repo, _, _ := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 1}))

	require.NoError(t, svc.UpdateQuantity(ctx, "u1", "p-1", 3))
	assert.Equal(t, 3, repo.carts["u1"].Items[0].Quantity)

	assert.ErrorIs(t, svc.UpdateQuantity(ctx, "u1", "p-1", 9), ErrQuantityExceedsStock)

	require.NoError(t, svc.RemoveItem(ctx, "u1", "p-1"))
	assert.Empty(t, repo.carts["u1"].Items)
}

func TestClearCart(t *testing.T) {
	svc, repo, c, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.ClearCart(ctx, "never-had-a-cart"))

	require.NoError(t, svc.AddItem(ctx, "u1", domain.CartItem{ProductID: "p-1", Quantity: 1}))
	require.NoError(t, svc.ClearCart(ctx, "u1"))
	_, ok := repo.carts["u1"]
	assert.False(t, ok)
	assert.False(t, c.cached("u1"))

	repo.deleteErr = errors.New("mongo down")
	assert.Error(t, svc.ClearCart(ctx, "u1"))
}
