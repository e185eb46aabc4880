package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) LoadStatuses(ctx context.Context) (map[string]model.Status, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(map[string]model.Status), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBackend) SaveStatus(ctx context.Context, item model.WorkItem) error {
	return m.Called(ctx, item).Error(0)
}

func TestTracker_ShouldProcess(t *testing.T) {
	b := &mockBackend{}
	b.On("LoadStatuses", mock.Anything).Return(map[string]model.Status{
		"done":    model.StatusSuccess,
		"skipped": model.StatusSkippedNotQualified,
		"failed":  model.StatusFailed,
		"pending": model.StatusPending,
	}, nil)

	tr := New(b, false)
	require.NoError(t, tr.Load(context.Background()))

	tests := []struct {
		id   string
		want bool
	}{
		{"done", false},
		{"skipped", false},
		{"failed", false},
		{"pending", true},
		{"new", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, _ := tr.ShouldProcess(tt.id)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTracker_ForceReadmitsTerminal(t *testing.T) {
	b := &mockBackend{}
	b.On("LoadStatuses", mock.Anything).Return(map[string]model.Status{"done": model.StatusSuccess}, nil)

	tr := New(b, true)
	require.NoError(t, tr.Load(context.Background()))

	ok, st := tr.ShouldProcess("done")
	assert.True(t, ok)
	assert.Equal(t, model.StatusSuccess, st)
}

func TestTracker_Filter(t *testing.T) {
	b := &mockBackend{}
	b.On("LoadStatuses", mock.Anything).Return(map[string]model.Status{
		"b": model.StatusSuccess,
		"d": model.StatusSkippedDuplicate,
	}, nil)

	tr := New(b, false)
	require.NoError(t, tr.Load(context.Background()))

	ids, filtered := tr.Filter([]string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.Equal(t, 2, filtered)
}

func TestTracker_RecordUpserts(t *testing.T) {
	b := &mockBackend{}
	b.On("LoadStatuses", mock.Anything).Return(map[string]model.Status{}, nil)
	b.On("SaveStatus", mock.Anything, mock.MatchedBy(func(it model.WorkItem) bool {
		return it.ID == "x"
	})).Return(nil).Twice()

	tr := New(b, false)
	require.NoError(t, tr.Load(context.Background()))

	require.NoError(t, tr.Record(context.Background(), "x", model.StatusFailed, "fetch", "status 500"))
	require.NoError(t, tr.Record(context.Background(), "x", model.StatusSuccess, "", ""))

	st, ok := tr.Status("x")
	assert.True(t, ok)
	assert.Equal(t, model.StatusSuccess, st)
	assert.Equal(t, 1, tr.Len())
	b.AssertExpectations(t)
}

func TestTracker_RecordInvalidStatus(t *testing.T) {
	tr := New(&mockBackend{}, false)
	err := tr.Record(context.Background(), "x", model.Status("weird"), "", "")
	assert.Error(t, err)
}

func TestTracker_RecordBackendError(t *testing.T) {
	b := &mockBackend{}
	b.On("SaveStatus", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	tr := New(b, false)
	err := tr.Record(context.Background(), "x", model.StatusSuccess, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, ok := tr.Status("x")
	assert.False(t, ok)
}

func TestTracker_LoadError(t *testing.T) {
	b := &mockBackend{}
	b.On("LoadStatuses", mock.Anything).Return(nil, errors.New("boom"))

	err := New(b, false).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker: load")
}

// A fully processed set yields nothing to do without force.
func TestTracker_IdempotentRerun(t *testing.T) {
	be, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = be.Close() })

	ctx := context.Background()
	ids := []string{"a", "b", "c"}

	first := New(be, false)
	require.NoError(t, first.Load(ctx))
	for _, id := range ids {
		require.NoError(t, first.Record(ctx, id, model.StatusSuccess, "", ""))
	}

	second := New(be, false)
	require.NoError(t, second.Load(ctx))
	todo, filtered := second.Filter(ids)
	assert.Empty(t, todo)
	assert.Equal(t, 3, filtered)
}
