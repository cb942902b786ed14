package workers

import (
	"context"
	"log/slog"
	"reading-room/domain"
	"reading-room/mocks"
	"reading-room/observability"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestHeartbeatWorker_PublishesRegistryCounts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := mocks.NewMockIRegistry(ctrl)
	monitoring := observability.NewMonitoringManager()

	registry.EXPECT().RoomSizes().Return(map[domain.RoomID]int{"poetry": 2, "prose": 1}).AnyTimes()
	registry.EXPECT().ConnectionCount().Return(4).AnyTimes()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker := NewHeartbeatWorker(slog.New(slog.DiscardHandler), registry, monitoring, 20*time.Millisecond)
	req.NoError(worker.Run(ctx))

	stats := monitoring.GetLatest()
	req.Equal("ok", stats.Status)
	req.Equal(4, stats.Connections)
	req.Equal(2, stats.Rooms)
	req.Equal(3, stats.Participants)
	req.NotZero(stats.RSSBytes)
}
