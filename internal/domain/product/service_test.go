package product

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-shop/internal/domain"
)

// --- Mock implementations ---

type mockRepo struct {
	mu       sync.Mutex
	byID     map[string]*Product
	found    []Product
	total    int
	lastQ    Query
	findErr  error
	countErr error
	listErr  error
	created  []*Product
	updated  []Patch
}

func newMockRepo(products ...Product) *mockRepo {
	byID := make(map[string]*Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return &mockRepo{byID: byID}
}

func (m *mockRepo) Find(_ context.Context, q Query) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastQ = q
	return m.found, m.findErr
}

func (m *mockRepo) Count(_ context.Context, _ Filter) (int, error) {
	return m.total, m.countErr
}

func (m *mockRepo) List(_ context.Context) ([]Product, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id string) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (*Product, error) {
	for _, p := range m.byID {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Create(_ context.Context, p *Product) error {
	p.ID = domain.NewID()
	m.byID[p.ID] = p
	m.created = append(m.created, p)
	return nil
}

func (m *mockRepo) Update(_ context.Context, id string, patch Patch) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.updated = append(m.updated, patch)
	patch.Apply(p)
	return p, nil
}

func (m *mockRepo) Delete(_ context.Context, id string) (*Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.byID, id)
	return p, nil
}

type mockPublisher struct {
	calls [][]Product
	err   error
}

func (m *mockPublisher) Publish(_ context.Context, products []Product) error {
	m.calls = append(m.calls, products)
	return m.err
}

// --- Helpers ---

const (
	idLaptop = "65a1b2c3d4e5f60718293a01"
	idMouse  = "65a1b2c3d4e5f60718293a02"
	idAbsent = "65a1b2c3d4e5f60718293aff"
)

func newTestProduct(id, code string, price int64) Product {
	return Product{
		ID:          id,
		Title:       "Product " + code,
		Description: "test product",
		Code:        code,
		Price:       decimal.NewFromInt(price),
		Status:      true,
		Stock:       5,
		Category:    "test",
		Thumbnails:  []string{},
	}
}

func validInput(code string) CreateInput {
	return CreateInput{
		Title:       "Laptop",
		Description: "Laptop de alto rendimiento",
		Code:        code,
		Price:       decimal.NewFromInt(2000000),
		Status:      true,
		Stock:       10,
		Category:    "Electrónicos",
	}
}

func ptr[T any](v T) *T { return &v }

// --- Tests ---

func TestList_QueryPlan(t *testing.T) {
	repo := newMockRepo()
	repo.found = []Product{newTestProduct(idMouse, "MOUSE001", 50)}
	repo.total = 7
	svc := NewService(repo, nil)

	page, err := svc.List(context.Background(), ListRequest{Page: 3, Limit: 2, Query: "status=true", Sort: "desc"})
	require.NoError(t, err)

	assert.Equal(t, 4, repo.lastQ.Skip)
	assert.Equal(t, 2, repo.lastQ.Limit)
	assert.Equal(t, SortPriceDesc, repo.lastQ.Sort)
	require.NotNil(t, repo.lastQ.Filter.Status)
	assert.True(t, *repo.lastQ.Filter.Status)

	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 3, page.Page)
	assert.True(t, page.HasPrevPage)
	assert.True(t, page.HasNextPage)
	assert.Len(t, page.Products, 1)
}

func TestList_CountError(t *testing.T) {
	repo := newMockRepo()
	repo.countErr = errors.Wrap(domain.ErrPersistence, "count")
	svc := NewService(repo, nil)

	_, err := svc.List(context.Background(), ListRequest{Page: 1, Limit: 10})
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestGet_InvalidID(t *testing.T) {
	svc := NewService(newMockRepo(), nil)

	_, err := svc.Get(context.Background(), "not-an-id")
	require.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestGet_NotFound(t *testing.T) {
	svc := NewService(newMockRepo(), nil)

	_, err := svc.Get(context.Background(), idAbsent)
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGet_UppercaseID(t *testing.T) {
	svc := NewService(newMockRepo(newTestProduct(idLaptop, "LAPTOP001", 100)), nil)

	p, err := svc.Get(context.Background(), "65A1B2C3D4E5F60718293A01")
	require.NoError(t, err)
	assert.Equal(t, idLaptop, p.ID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *CreateInput)
		field string
	}{
		{name: "missing title", edit: func(in *CreateInput) { in.Title = "  " }, field: "title"},
		{name: "missing code", edit: func(in *CreateInput) { in.Code = "" }, field: "code"},
		{name: "missing category", edit: func(in *CreateInput) { in.Category = "" }, field: "category"},
		{name: "negative price", edit: func(in *CreateInput) { in.Price = decimal.NewFromInt(-1) }, field: "price"},
		{name: "negative stock", edit: func(in *CreateInput) { in.Stock = -3 }, field: "stock"},
		{name: "price over limit", edit: func(in *CreateInput) { in.Price = decimal.New(2, 12) }, field: "price"},
		{name: "price just over limit", edit: func(in *CreateInput) {
			in.Price = decimal.RequireFromString("1000000000000.000000000001")
		}, field: "price"},
		{name: "huge price", edit: func(in *CreateInput) { in.Price = decimal.New(1, 400) }, field: "price"},
		{name: "stock over int32", edit: func(in *CreateInput) { in.Stock = 1 << 31 }, field: "stock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockRepo()
			svc := NewService(repo, nil)

			in := validInput("X1")
			tt.edit(&in)
			_, err := svc.Create(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			var inputErr *domain.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Empty(t, repo.created)
		})
	}
}

func TestCreate_CodeTaken(t *testing.T) {
	repo := newMockRepo(newTestProduct(idLaptop, "X1", 100))
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	_, err := svc.Create(context.Background(), validInput("X1"))
	require.ErrorIs(t, err, ErrCodeTaken)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, repo.created)
	assert.Empty(t, pub.calls)
}

func TestCreate_PublishesCatalog(t *testing.T) {
	repo := newMockRepo(newTestProduct(idLaptop, "LAPTOP001", 100))
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	in := validInput("  MOUSE001 ")
	in.Thumbnails = nil
	p, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "MOUSE001", p.Code)
	assert.NotNil(t, p.Thumbnails)
	require.NoError(t, domain.ValidateID(p.ID))
	require.Len(t, pub.calls, 1)
	assert.Len(t, pub.calls[0], 2)
}

func TestCreate_PublishFailureIgnored(t *testing.T) {
	repo := newMockRepo()
	pub := &mockPublisher{err: errors.New("hub closed")}
	svc := NewService(repo, pub)

	_, err := svc.Create(context.Background(), validInput("X1"))
	require.NoError(t, err)
	assert.Len(t, pub.calls, 1)
}

func TestCreate_SnapshotFailureIgnored(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = errors.New("db down")
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	_, err := svc.Create(context.Background(), validInput("X1"))
	require.NoError(t, err)
	assert.Empty(t, pub.calls)
}

func TestUpdate_Patch(t *testing.T) {
	repo := newMockRepo(newTestProduct(idLaptop, "LAPTOP001", 100))
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	p, err := svc.Update(context.Background(), idLaptop, Patch{
		Price:  ptr(decimal.NewFromInt(90)),
		Status: ptr(false),
	})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(90).Equal(p.Price))
	assert.False(t, p.Status)
	assert.Equal(t, "LAPTOP001", p.Code)
	assert.Equal(t, 5, p.Stock)
	assert.Len(t, pub.calls, 1)
}

func TestUpdate_CodeTakenByOther(t *testing.T) {
	repo := newMockRepo(
		newTestProduct(idLaptop, "LAPTOP001", 100),
		newTestProduct(idMouse, "MOUSE001", 50),
	)
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), idMouse, Patch{Code: ptr("LAPTOP001")})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, repo.updated)
}

func TestUpdate_SameCodeAllowed(t *testing.T) {
	repo := newMockRepo(newTestProduct(idLaptop, "LAPTOP001", 100))
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), idLaptop, Patch{Code: ptr("LAPTOP001")})
	require.NoError(t, err)
}

func TestUpdate_InvalidPatch(t *testing.T) {
	repo := newMockRepo(newTestProduct(idLaptop, "LAPTOP001", 100))
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), idLaptop, Patch{Stock: ptr(-1)})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Update(context.Background(), idLaptop, Patch{Title: ptr("   ")})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Update(context.Background(), idLaptop, Patch{Price: ptr(decimal.New(1, 400))})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	var inputErr *domain.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "price", inputErr.Field)
	assert.Equal(t, "must be at most 1000000000000", inputErr.Reason)
	assert.Empty(t, repo.updated)
}

func TestCreate_PriceBoundsInclusive(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, nil)

	in := validInput("MAX1")
	in.Price = decimal.New(1, 12)
	_, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	in = validInput("FREE1")
	in.Price = decimal.Zero
	_, err = svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, repo.created, 2)
}

func TestUpdate_NotFound(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(newMockRepo(), pub)

	_, err := svc.Update(context.Background(), idAbsent, Patch{Stock: ptr(1)})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, pub.calls)
}

func TestDelete_PublishesCatalog(t *testing.T) {
	repo := newMockRepo(
		newTestProduct(idLaptop, "LAPTOP001", 100),
		newTestProduct(idMouse, "MOUSE001", 50),
	)
	pub := &mockPublisher{}
	svc := NewService(repo, pub)

	p, err := svc.Delete(context.Background(), idMouse)
	require.NoError(t, err)
	assert.Equal(t, "MOUSE001", p.Code)

	require.Len(t, pub.calls, 1)
	require.Len(t, pub.calls[0], 1)
	assert.Equal(t, idLaptop, pub.calls[0][0].ID)
}

func TestDelete_InvalidID(t *testing.T) {
	pub := &mockPublisher{}
	svc := NewService(newMockRepo(), pub)

	_, err := svc.Delete(context.Background(), "123")
	require.ErrorIs(t, err, domain.ErrInvalidIdentity)
	assert.Empty(t, pub.calls)
}
