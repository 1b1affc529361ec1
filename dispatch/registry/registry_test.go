package registry

import (
	"cmp"
	"context"
	"errors"
	"math"
	"regexp"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/pipeline"
)

func nop(context.Context, string, string, *domain.Request) (any, error) { return nil, nil }

func newRegistry() (*Registry, *Callback) {
	def := Func(nop)
	return New(def), def
}

func callbacks(r *Registry) []*Callback {
	var out []*Callback
	for _, e := range r.Entries() {
		out = append(out, e.Callback())
	}
	return out
}

func TestRegistry_ContainsDefaultOnly(t *testing.T) {
	r, def := newRegistry()

	require.Equal(t, 1, r.Len())
	e := r.Entries()[0]
	assert.True(t, e.IsDefault())
	assert.Same(t, def, e.Callback())
	assert.Equal(t, KindCallback, e.Kind())
}

func TestRegistry_NewPanicsWithoutDefault(t *testing.T) {
	assert.Panics(t, func() { New(nil) })
	assert.Panics(t, func() { New(&Callback{}) })
}

func TestRegistry_OrderByPriority(t *testing.T) {
	r, def := newRegistry()

	high := Func(nop).WithPriority(1)
	low := Func(nop).WithPriority(-1)

	_, err := r.Add(low)
	require.NoError(t, err)
	_, err = r.Add(high)
	require.NoError(t, err)

	assert.Equal(t, []*Callback{high, def, low}, callbacks(r))
	assert.Equal(t, 1, r.Entries()[0].Priority())
	assert.Equal(t, -1, r.Entries()[2].Priority())
}

func TestRegistry_OrderByPriorityAtIntBounds(t *testing.T) {
	r, def := newRegistry()

	one := Func(nop).WithPriority(1)
	lowest := Func(nop).WithPriority(math.MinInt)
	highest := Func(nop).WithPriority(math.MaxInt)
	_, err := r.Add([]*Callback{one, lowest, highest})
	require.NoError(t, err)

	assert.Equal(t, []*Callback{highest, one, def, lowest}, callbacks(r))

	var got []int
	for _, e := range r.Entries() {
		got = append(got, e.Priority())
	}
	assert.Equal(t, []int{math.MaxInt, 1, 0, math.MinInt}, got)
	assert.True(t, slices.IsSortedFunc(got, func(a, b int) int { return cmp.Compare(b, a) }))
}

func TestRegistry_EqualPriorityKeepsInsertionOrder(t *testing.T) {
	r, def := newRegistry()

	a := Func(nop)
	b := Func(nop)
	c := Func(nop).WithPriority(2)
	_, err := r.Add([]*Callback{a, b})
	require.NoError(t, err)
	_, err = r.Add(c)
	require.NoError(t, err)

	assert.Equal(t, []*Callback{c, def, a, b}, callbacks(r))
}

func TestRegistry_AddIsIdempotent(t *testing.T) {
	r, _ := newRegistry()
	res := Func(nop).WithPriority(1)

	h1, err := r.Add(res)
	require.NoError(t, err)
	h1.Use(pipeline.Normal(func(context.Context, *domain.Request, domain.Response, pipeline.Next) error { return nil }))

	// prioridade mudou, mas a entrada já existe: posição e middleware ficam
	res.Priority = -5
	h2, err := r.Add(res)
	require.NoError(t, err)

	assert.Equal(t, 2, r.Len())
	assert.Same(t, res, r.Entries()[0].Callback())
	assert.Equal(t, 1, r.Entries()[0].Priority())
	require.Len(t, h2.Pipelines(), 1)
	assert.Same(t, h1.Pipelines()[0], h2.Pipelines()[0])
	assert.Equal(t, 1, h2.Pipelines()[0].Len())
}

func TestRegistry_Remove(t *testing.T) {
	r, def := newRegistry()
	res := Func(nop).WithPriority(1)

	_, err := r.Add(res)
	require.NoError(t, err)
	require.Equal(t, 2, r.Len())

	r.Remove(res)
	assert.Equal(t, 1, r.Len())
	assert.Same(t, def, r.Entries()[0].Callback())

	// ausente, padrão e formas inválidas não mudam nada
	r.Remove(res)
	r.Remove(def)
	r.Remove("nope")
	r.Remove(nil)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Entries()[0].IsDefault())
}

func TestRegistry_RemoveDropsPipeline(t *testing.T) {
	r, _ := newRegistry()
	res := Func(nop)

	h, err := r.Add(res)
	require.NoError(t, err)
	h.Use(pipeline.Normal(func(context.Context, *domain.Request, domain.Response, pipeline.Next) error { return nil }))

	r.Remove(res)
	h2, err := r.Add(res)
	require.NoError(t, err)
	assert.Equal(t, 0, h2.Pipelines()[0].Len())
}

func TestRegistry_DeclarativeMatcher(t *testing.T) {
	r, def := newRegistry()
	m := &Matcher{Match: regexp.MustCompile(`^/test`), Priority: 1}

	_, err := r.Add(m)
	require.NoError(t, err)

	require.Equal(t, 2, r.Len())
	e := r.Entries()[0]
	assert.Equal(t, KindDeclarative, e.Kind())
	assert.Equal(t, 1, e.Priority())
	assert.Same(t, m, e.Matcher())
	assert.Same(t, def, r.Entries()[1].Callback())
}

func TestRegistry_AddMixedSequence(t *testing.T) {
	r, _ := newRegistry()
	a := Func(nop)
	m := &Matcher{Match: regexp.MustCompile(`/x`)}

	h, err := r.Add([]any{a, m})
	require.NoError(t, err)
	assert.Equal(t, 3, r.Len())
	assert.Len(t, h.Pipelines(), 2)

	h.Use(pipeline.Normal(func(context.Context, *domain.Request, domain.Response, pipeline.Next) error { return nil }))
	for _, p := range h.Pipelines() {
		assert.Equal(t, 1, p.Len())
	}

	r.Remove([]any{a, m})
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_InvalidSpecs(t *testing.T) {
	r, _ := newRegistry()

	invalid := []any{
		nil,
		map[string]any{},
		func() {},
		"http://127.0.0.1",
		&Callback{},
		&Matcher{},
		[]any{Func(nop), 42},
	}
	for _, spec := range invalid {
		_, err := r.Add(spec)
		var cerr *domain.ConfigurationError
		assert.True(t, errors.As(err, &cerr), "spec %T", spec)
	}
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	r, _ := newRegistry()
	snap := r.Entries()

	_, err := r.Add(Func(nop).WithPriority(3))
	require.NoError(t, err)

	assert.Len(t, snap, 1)
	assert.Equal(t, 2, r.Len())
}

func TestEntry_Accepts(t *testing.T) {
	r, _ := newRegistry()
	m := &Matcher{
		Match:  regexp.MustCompile(`^/test`),
		Host:   regexp.MustCompile(`^api\.example\.com$`),
		Method: "POST",
	}
	_, err := r.Add(m)
	require.NoError(t, err)

	var e *Entry
	for _, x := range r.Entries() {
		if x.Matcher() == m {
			e = x
		}
	}
	require.NotNil(t, e)

	assert.True(t, e.Accepts(&domain.Request{Host: "api.example.com:8443", Path: "/test/1", Method: "POST"}))
	assert.False(t, e.Accepts(&domain.Request{Host: "api.example.com", Path: "/test", Method: "GET"}))
	assert.False(t, e.Accepts(&domain.Request{Host: "other.com", Path: "/test", Method: "POST"}))
	assert.False(t, e.Accepts(&domain.Request{Host: "api.example.com", Path: "/nope", Method: "POST"}))

	v6 := &Matcher{Match: regexp.MustCompile(`^/`), Host: regexp.MustCompile(`^::1$`)}
	_, err = r.Add(v6)
	require.NoError(t, err)
	for _, x := range r.Entries() {
		if x.Matcher() == v6 {
			e = x
		}
	}
	assert.True(t, e.Accepts(&domain.Request{Host: "[::1]", Path: "/"}))
	assert.True(t, e.Accepts(&domain.Request{Host: "[::1]:8080", Path: "/"}))

	got, err := e.Resolve(context.Background(), &domain.Request{Path: "/test"})
	require.NoError(t, err)
	route, ok := got.(*domain.Route)
	require.True(t, ok)
	assert.Equal(t, "/", route.Path)
	assert.False(t, route.IsResolved)
}

func TestRegistry_DefaultHandle(t *testing.T) {
	r, _ := newRegistry()
	r.Default().Use(pipeline.Normal(func(context.Context, *domain.Request, domain.Response, pipeline.Next) error { return nil }))
	assert.Equal(t, 1, r.Entries()[0].Pipeline().Len())
}
