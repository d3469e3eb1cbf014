package rbac

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, pub Publisher) (*Registry, *MatrixStore, *Evaluator) {
	t.Helper()
	backend := NewMemoryBackend()
	resources := testResources(t)
	reg := NewRegistry(backend, resources, pub)
	store := NewMatrixStore(backend, resources, pub)
	return reg, store, NewEvaluator(store, nil, nil)
}

func TestScenarioToggleSingleCell(t *testing.T) {
	ctx := context.Background()
	reg, store, eval := newTestStore(t, nil)

	_, err := reg.RegisterRole(ctx, RoleFinance, "Finance", nil)
	require.NoError(t, err)
	require.False(t, eval.Can(ctx, RoleFinance, "orders", ActionView))

	require.NoError(t, store.SetGrant(ctx, RoleFinance, "orders", ActionView, true))
	require.True(t, eval.Can(ctx, RoleFinance, "orders", ActionView))
	require.False(t, eval.Can(ctx, RoleFinance, "orders", ActionDelete))
}

func TestSetGrantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	reg, store, _ := newTestStore(t, pub)
	_, err := reg.RegisterRole(ctx, RoleSeller, "", nil)
	require.NoError(t, err)

	require.NoError(t, store.SetGrant(ctx, RoleSeller, "coupons", ActionEdit, true))
	first, err := store.MatrixForRole(ctx, RoleSeller)
	require.NoError(t, err)
	require.NoError(t, store.SetGrant(ctx, RoleSeller, "coupons", ActionEdit, true))
	second, err := store.MatrixForRole(ctx, RoleSeller)
	require.NoError(t, err)
	require.Equal(t, first, second)

	allowed, err := store.GetGrant(ctx, RoleSeller, "coupons", ActionEdit)
	require.NoError(t, err)
	require.True(t, allowed)

	changes := pub.snapshot()
	require.Len(t, changes, 3)
	require.Equal(t, ChangeGrantSet, changes[2].Kind)
	require.Equal(t, Resource("coupons"), changes[2].Grant.Resource)
}

func TestMatrixStoreRejectsUnknownKeys(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestStore(t, nil)
	_, err := reg.RegisterRole(ctx, RoleFinance, "", nil)
	require.NoError(t, err)

	_, err = store.GetGrant(ctx, RoleFinance, "payroll", ActionView)
	require.ErrorIs(t, err, ErrUnknownResource)
	err = store.SetGrant(ctx, RoleFinance, "orders", "approve", true)
	require.ErrorIs(t, err, ErrUnknownAction)

	err = store.SetGrant(ctx, RoleCustomer, "orders", ActionView, true)
	require.ErrorIs(t, err, ErrUnknownRole)
	_, err = store.GetGrant(ctx, RoleCustomer, "orders", ActionView)
	require.ErrorIs(t, err, ErrUnknownRole)
	_, err = store.MatrixForRole(ctx, RoleCustomer)
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestMatrixForRoleIsCompleteAndDetached(t *testing.T) {
	ctx := context.Background()
	reg, store, _ := newTestStore(t, nil)
	_, err := reg.RegisterRole(ctx, RoleAffiliate, "", []Grant{{Resource: "aff-links", Action: ActionView, Allowed: true}})
	require.NoError(t, err)

	m, err := store.MatrixForRole(ctx, RoleAffiliate)
	require.NoError(t, err)
	require.Len(t, m, 4)
	for _, row := range m {
		require.Len(t, row, len(Actions()))
	}
	require.True(t, m.Allowed("aff-links", ActionView))
	require.False(t, m.Allowed("aff-links", ActionCreate))
	require.False(t, m.Allowed("unknown", ActionView))

	m["aff-links"][ActionDelete] = true
	fresh, err := store.MatrixForRole(ctx, RoleAffiliate)
	require.NoError(t, err)
	require.False(t, fresh.Allowed("aff-links", ActionDelete))
}

func TestMatrixStoreWrapsBackendFailures(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend()}
	resources := testResources(t)
	reg := NewRegistry(backend, resources, nil)
	store := NewMatrixStore(backend, resources, nil)
	ctx := context.Background()
	_, err := reg.RegisterRole(ctx, RoleFinance, "", nil)
	require.NoError(t, err)

	backend.err = errConnRefused
	_, err = store.GetGrant(ctx, RoleFinance, "orders", ActionView)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorIs(t, err, errConnRefused)

	err = store.SetGrant(ctx, RoleFinance, "orders", ActionView, true)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = store.MatrixForRole(ctx, RoleFinance)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = store.GetGrant(ctx, RoleFinance, "payroll", ActionView)
	require.ErrorIs(t, err, ErrUnknownResource)
}

func TestConcurrentTogglesAndReads(t *testing.T) {
	ctx := context.Background()
	reg, store, eval := newTestStore(t, nil)
	_, err := reg.RegisterRole(ctx, RoleAdminOperational, "", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			act := Actions()[i%len(Actions())]
			_ = store.SetGrant(ctx, RoleAdminOperational, "orders", act, true)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.MatrixForRole(ctx, RoleAdminOperational)
			_ = eval.Can(ctx, RoleAdminOperational, "orders", ActionView)
		}()
	}
	wg.Wait()

	m, err := store.MatrixForRole(ctx, RoleAdminOperational)
	require.NoError(t, err)
	for _, act := range Actions() {
		require.True(t, m.Allowed("orders", act))
	}
}

func TestMatrixForRoleSeesWriteCommittedDuringLoad(t *testing.T) {
	ctx := context.Background()
	backend := newGatedBackend()
	t.Cleanup(backend.open)
	resources := testResources(t)
	reg := NewRegistry(backend, resources, nil)
	store := NewMatrixStore(backend, resources, nil)
	_, err := reg.RegisterRole(ctx, RoleFinance, "Finance", nil)
	require.NoError(t, err)

	stale := make(chan Matrix, 1)
	go func() {
		m, _ := store.MatrixForRole(ctx, RoleFinance)
		stale <- m
	}()
	<-backend.entered

	require.NoError(t, store.SetGrant(ctx, RoleFinance, "orders", ActionView, true))

	fresh := make(chan Matrix, 1)
	go func() {
		m, _ := store.MatrixForRole(ctx, RoleFinance)
		fresh <- m
	}()
	select {
	case <-backend.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("read after SetGrant joined the load started before it")
	}
	backend.open()

	<-stale
	m := <-fresh
	require.True(t, m["orders"][ActionView])
}

func TestMatrixForRoleIgnoresOtherCallersCancellation(t *testing.T) {
	backend := newGatedBackend()
	t.Cleanup(backend.open)
	resources := testResources(t)
	reg := NewRegistry(backend, resources, nil)
	store := NewMatrixStore(backend, resources, nil)
	_, err := reg.RegisterRole(context.Background(), RoleSeller, "", nil)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := store.MatrixForRole(cancelled, RoleSeller)
		first <- err
	}()
	<-backend.entered

	second := make(chan error, 1)
	go func() {
		_, err := store.MatrixForRole(context.Background(), RoleSeller)
		second <- err
	}()

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)

	backend.open()
	require.NoError(t, <-second)
}

func TestMatrixForRoleSeesRegistrationCommittedDuringLoad(t *testing.T) {
	ctx := context.Background()
	backend := newGatedBackend()
	t.Cleanup(backend.open)
	resources := testResources(t)
	reg := NewRegistry(backend, resources, nil)
	store := NewMatrixStore(backend, resources, nil)

	first := make(chan error, 1)
	go func() {
		_, err := store.MatrixForRole(ctx, RoleSeller)
		first <- err
	}()
	<-backend.entered

	_, err := reg.RegisterRole(ctx, RoleSeller, "", []Grant{{Resource: "orders", Action: ActionView, Allowed: true}})
	require.NoError(t, err)

	type result struct {
		m   Matrix
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := store.MatrixForRole(ctx, RoleSeller)
		second <- result{m, err}
	}()
	backend.open()

	<-first
	got := <-second
	require.NoError(t, got.err)
	require.True(t, got.m["orders"][ActionView])
}
