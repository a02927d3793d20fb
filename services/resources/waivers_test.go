package resources

import (
	"context"
	"testing"

	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWaiversRetriever_Retrieve(t *testing.T) {
	ctx := context.Background()
	filter := models.WaiverFilter{
		SubjectType:       "koji_build",
		SubjectIdentifier: nvr,
		ProductVersion:    "fedora-38",
		Testcase:          "dist.abicheck",
	}

	t.Run("keeps active waivers only", func(t *testing.T) {
		repo := new(MockWaiversRepository)
		repo.On("Filtered", ctx, []models.WaiverFilter{filter}).Return([]models.Waiver{
			{ID: 1, SubjectType: "koji_build", SubjectIdentifier: nvr, Testcase: "dist.abicheck", Waived: true},
			{ID: 2, SubjectType: "koji_build", SubjectIdentifier: nvr, Testcase: "dist.rpmdeplint", Waived: false},
			{ID: 3, SubjectType: "koji_build", SubjectIdentifier: nvr, Testcase: "dist.upgradepath", Waived: true},
		}, nil)

		r := NewWaiversRetriever(repo, RetrieverOptions{IgnoreIDs: []int64{3}}, zap.NewNop())
		waivers, err := r.Retrieve(ctx, []models.WaiverFilter{filter})
		require.NoError(t, err)
		require.Len(t, waivers, 1)
		assert.Equal(t, int64(1), waivers[0].ID)
	})

	t.Run("adds since to every filter", func(t *testing.T) {
		since := filter
		since.Since = "1900-01-01T00:00:00.000000,2024-02-01T00:00:00.000000"

		repo := new(MockWaiversRepository)
		repo.On("Filtered", ctx, []models.WaiverFilter{since}).Return([]models.Waiver{}, nil)

		r := NewWaiversRetriever(repo, RetrieverOptions{When: "2024-02-01T00:00:00.000000"}, zap.NewNop())
		filters := []models.WaiverFilter{filter}
		_, err := r.Retrieve(ctx, filters)
		require.NoError(t, err)
		assert.Empty(t, filters[0].Since)
		repo.AssertExpectations(t)
	})

	t.Run("no filters", func(t *testing.T) {
		repo := new(MockWaiversRepository)
		r := NewWaiversRetriever(repo, RetrieverOptions{}, zap.NewNop())
		waivers, err := r.Retrieve(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, waivers)
		repo.AssertNotCalled(t, "Filtered")
	})

	t.Run("store errors propagate", func(t *testing.T) {
		repo := new(MockWaiversRepository)
		repo.On("Filtered", ctx, []models.WaiverFilter{filter}).Return(nil, services.WrapExternal("WaiverDB unavailable", nil))

		r := NewWaiversRetriever(repo, RetrieverOptions{}, zap.NewNop())
		_, err := r.Retrieve(ctx, []models.WaiverFilter{filter})
		assert.True(t, services.IsExternalError(err))
	})
}
