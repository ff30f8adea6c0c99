package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/automountd/internal/infrastructure/config"
	"github.com/nerrad567/automountd/internal/infrastructure/database"
	"github.com/nerrad567/automountd/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func intPtr(i int) *int { return &i }

func TestAppendAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	events := []*Event{
		{Kind: DeviceAdded, DeviceID: 1, Devlink: "/dev/disk/by-id/usb-A", CreatedAt: base},
		{Kind: VolumeAdded, DeviceID: 1, Devlink: "/dev/disk/by-id/usb-A-part1", Volume: intPtr(1),
			VolumeUUID: "1234-ABCD", Label: "STICK", Mountpoint: "/run/automountd/1/1",
			Detail: map[string]any{"fstype": "vfat"}, CreatedAt: base.Add(time.Second)},
		{Kind: DeviceAdded, DeviceID: 2, Devlink: "/dev/disk/by-id/ata-B", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range events {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if !strings.HasPrefix(e.ID, "evt-") {
			t.Errorf("ID = %q, want evt- prefix", e.ID)
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Events) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3/3", res.Total, len(res.Events))
	}
	if res.Events[0].DeviceID != 2 {
		t.Errorf("first event device = %d, want most recent (2)", res.Events[0].DeviceID)
	}

	vol := res.Events[1]
	if vol.Kind != VolumeAdded || vol.Volume == nil || *vol.Volume != 1 {
		t.Errorf("volume event = %+v", vol)
	}
	if vol.Label != "STICK" || vol.Mountpoint != "/run/automountd/1/1" || vol.Detail["fstype"] != "vfat" {
		t.Errorf("volume event fields = %+v", vol)
	}
	if !vol.CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", vol.CreatedAt, base.Add(time.Second))
	}
	if res.Events[2].Volume != nil {
		t.Errorf("device event Volume = %v, want nil", *res.Events[2].Volume)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	for i, k := range []Kind{DeviceAdded, VolumeAdded, DeviceRemoving, DeviceRemoved} {
		for dev := 1; dev <= 2; dev++ {
			e := &Event{Kind: k, DeviceID: dev, Devlink: "x", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			if err := repo.Append(ctx, e); err != nil {
				t.Fatal(err)
			}
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 8},
		{"by kind", Filter{Kind: DeviceRemoved}, 2},
		{"by device", Filter{DeviceID: 2}, 4},
		{"kind and device", Filter{Kind: VolumeAdded, DeviceID: 1}, 1},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("Total = %d, want %d", res.Total, tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := repo.Append(ctx, &Event{Kind: DeviceAdded, DeviceID: i + 1, Devlink: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	res, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 5 || len(res.Events) != 1 {
		t.Errorf("total=%d len=%d, want 5/1", res.Total, len(res.Events))
	}
	if res.Events[0].DeviceID != 1 {
		t.Errorf("last page device = %d, want oldest (1)", res.Events[0].DeviceID)
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in         Filter
		wantLimit  int
		wantOffset int
	}{
		{Filter{}, DefaultLimit, 0},
		{Filter{Limit: 10, Offset: 5}, 10, 5},
		{Filter{Limit: 1000}, MaxLimit, 0},
		{Filter{Limit: -1, Offset: -3}, DefaultLimit, 0},
	}
	for _, tt := range tests {
		got := clamp(tt.in)
		if got.Limit != tt.wantLimit || got.Offset != tt.wantOffset {
			t.Errorf("clamp(%+v) = limit %d offset %d, want %d %d", tt.in, got.Limit, got.Offset, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestAppend_RequiresKind(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Append(context.Background(), &Event{DeviceID: 1}); err == nil {
		t.Error("Append() expected error for empty kind")
	}
}
