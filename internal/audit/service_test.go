package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	windowRows     []TimelineRow
	allRows        []TimelineRow
	lastWindowCall WindowParams
	lastAllCall    WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastWindowCall = params
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(_ context.Context, params WindowParams) ([]TimelineRow, error) {
	s.lastAllCall = params
	return s.allRows, nil
}

func row(at string, actor, action, entity, entityID string) TimelineRow {
	t, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: t, Actor: actor, Action: action, Entity: entity, EntityID: entityID}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{
		windowRows: []TimelineRow{
			row("2026-03-10T10:00:00Z", "ops@essentia.example", "inventory.receive", "purchase_order", "1"),
			row("2026-03-09T09:00:00Z", "ops@essentia.example", "inventory.adjust", "material", "2"),
			row("2026-03-08T08:00:00Z", "ops@essentia.example", "user.create", "user", "3"),
		},
	}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)

	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.lastWindowCall.Limit)
	assert.Equal(t, 0, repo.lastWindowCall.Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)

	assert.Equal(t, 51, repo.lastWindowCall.Limit)
	assert.Equal(t, 100, repo.lastWindowCall.Offset)
}

func TestExportCSVRendersAllRows(t *testing.T) {
	repo := &stubTimelineRepo{
		allRows: []TimelineRow{
			row("2026-03-10T10:00:00Z", "ops", "inventory.receive", "purchase_order", "1"),
			{At: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), Actor: "ops", Action: "inventory.adjust", Entity: "material", EntityID: "2", Meta: map[string]any{"qty": "3.5"}},
		},
	}
	svc := NewService(repo)

	data, err := svc.ExportCSV(context.Background(), TimelineFilters{Actor: "ops"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "at,actor,action,entity,entity_id,meta", lines[0])
	assert.Contains(t, lines[1], "purchase_order")
	assert.Contains(t, lines[2], `""qty"":""3.5""`)
	assert.Equal(t, "ops", repo.lastAllCall.Actor)
}
