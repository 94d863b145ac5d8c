package serial

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type account struct {
	ID      uint32
	Name    string
	Balance float64
	Tags    []string
	Note    *string
	Meta    accountMeta

	hidden int // unexported, must not register
}

type accountMeta struct {
	Created time.Time
	Flags   []byte
}

type taggedRecord struct {
	ID     uint32 `serial:"id"`
	Secret string `serial:"-"`
	Name   string `serial:"display_name"`
}

type selfRef struct {
	Next *selfRef
}

type sliceRef struct {
	Children []sliceRef
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()

	d, err := r.Resolve(reflect.TypeOf(account{}))
	require.NoError(t, err)

	names := make([]string, len(d.Fields))
	kinds := make([]Kind, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
		kinds[i] = f.Kind
	}
	assert.Equal(t, []string{"ID", "Name", "Balance", "Tags", "Note", "Meta"}, names)
	assert.Equal(t, []Kind{KindUint32, KindString, KindFloat64, KindSlice, KindString, KindStruct}, kinds)
	assert.Equal(t, KindString, d.Fields[3].ElemKind)
	assert.True(t, d.Fields[4].Nullable)
	require.NotNil(t, d.Fields[5].Elem)
	assert.Equal(t, KindTime, d.Fields[5].Elem.Fields[0].Kind)
	assert.Equal(t, KindBytes, d.Fields[5].Elem.Fields[1].Kind)

	t.Run("MemoizedSameInstance", func(t *testing.T) {
		again, err := r.Resolve(reflect.TypeOf(account{}))
		require.NoError(t, err)
		assert.Same(t, d, again)
	})

	t.Run("PointerResolvesToElem", func(t *testing.T) {
		viaPtr, err := r.Resolve(reflect.TypeOf(&account{}))
		require.NoError(t, err)
		assert.Same(t, d, viaPtr)
	})

	t.Run("LookupByID", func(t *testing.T) {
		found, ok := r.Lookup(d.ID)
		require.True(t, ok)
		assert.Same(t, d, found)
	})

	t.Run("NestedShapeRegistered", func(t *testing.T) {
		nested, ok := r.Lookup(d.Fields[5].Elem.ID)
		require.True(t, ok)
		assert.Same(t, d.Fields[5].Elem, nested)
	})
}

func TestRegistryTags(t *testing.T) {
	r := NewRegistry()
	d, err := r.Resolve(reflect.TypeOf(taggedRecord{}))
	require.NoError(t, err)

	require.Len(t, d.Fields, 2)
	assert.Equal(t, "id", d.Fields[0].Name)
	assert.Equal(t, "display_name", d.Fields[1].Name)
}

func TestRegistryUnsupported(t *testing.T) {
	r := NewRegistry()

	cases := map[string]any{
		"TopLevelPrimitive": 42,
		"MapField":          struct{ M map[string]int }{},
		"ChanField":         struct{ C chan int }{},
		"FuncField":         struct{ F func() }{},
		"InterfaceField":    struct{ I any }{},
		"ComplexField":      struct{ C complex128 }{},
		"NestedSlices":      struct{ S [][]int }{},
		"DoublePointer":     struct{ P **int }{},
		"PointerCycle":      selfRef{},
		"SliceCycle":        sliceRef{},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Resolve(reflect.TypeOf(v))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
}

// Concurrent first-time resolution must introspect once and hand every
// caller the same descriptor instance.
func TestRegistryConcurrentResolve(t *testing.T) {
	r := NewRegistry()

	results := make([]*TypeDescriptor, 32)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			d, err := r.Resolve(reflect.TypeOf(account{}))
			results[i] = d
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, d := range results[1:] {
		assert.Same(t, results[0], d)
	}
}

// The identifier is a pure function of the shape: independent registries
// agree, and the documented signature feeds the hash.
func TestRegistryStableIdentifier(t *testing.T) {
	a, err := NewRegistry().Resolve(reflect.TypeOf(account{}))
	require.NoError(t, err)
	b, err := NewRegistry().Resolve(reflect.TypeOf(account{}))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Signature(), b.Signature())
	assert.Contains(t, a.Signature(), "Note:*string")
	assert.Contains(t, a.Signature(), "Tags:[]string")
}
