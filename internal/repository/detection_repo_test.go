package repository

import (
	"context"
	"testing"

	"github.com/yuqie6/habtrack/internal/schema"
	"github.com/yuqie6/habtrack/internal/testutil"
)

func TestDetectionRepoReplaceAllAndAll(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDetectionRepository(db)
	ctx := context.Background()

	rows := []schema.Detection{
		{AnimalID: "mouse_2", Antenna: 2, Source: "COM3", Datetime: 2_000_000, Position: "cage_2"},
		{AnimalID: "mouse_1", Antenna: 1, Source: "COM3", Datetime: 1_000_000, Position: "cage_1"},
		{AnimalID: "mouse_1", Antenna: 2, Source: "COM3", Datetime: 2_000_000, Position: "c1_c2"},
	}
	if err := repo.ReplaceAll(ctx, rows); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	got, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("行数 = %d, want 3", len(got))
	}
	// 按时间排序，同刻按动物
	if got[0].AnimalID != "mouse_1" || got[0].Datetime != 1_000_000 {
		t.Errorf("got[0] = %s@%d", got[0].AnimalID, got[0].Datetime)
	}
	if got[1].AnimalID != "mouse_1" || got[2].AnimalID != "mouse_2" {
		t.Errorf("同刻排序错误: %s, %s", got[1].AnimalID, got[2].AnimalID)
	}

	// 重算覆盖整张表
	if err := repo.ReplaceAll(ctx, rows[:1]); err != nil {
		t.Fatalf("ReplaceAll 二次: %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("覆盖后行数 = %d, want 1", n)
	}
}

func TestDetectionRepoReplaceAllEmpty(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDetectionRepository(db)
	ctx := context.Background()

	if err := repo.ReplaceAll(ctx, []schema.Detection{{AnimalID: "mouse_1", Datetime: 1}}); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	if err := repo.ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("ReplaceAll 空表: %v", err)
	}
	n, _ := repo.Count(ctx)
	if n != 0 {
		t.Errorf("清空后行数 = %d", n)
	}
}

func TestDetectionRepoByAnimals(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDetectionRepository(db)
	ctx := context.Background()

	rows := []schema.Detection{
		{AnimalID: "mouse_1", Datetime: 1_000_000},
		{AnimalID: "mouse_2", Datetime: 2_000_000},
		{AnimalID: "mouse_3", Datetime: 3_000_000},
	}
	if err := repo.ReplaceAll(ctx, rows); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	got, err := repo.ByAnimals(ctx, []string{"mouse_1", "mouse_3"})
	if err != nil {
		t.Fatalf("ByAnimals: %v", err)
	}
	if len(got) != 2 || got[0].AnimalID != "mouse_1" || got[1].AnimalID != "mouse_3" {
		t.Errorf("ByAnimals = %+v", got)
	}
}

func TestDetectionRepoTimeBounds(t *testing.T) {
	db := testutil.OpenTestDB(t)
	repo := NewDetectionRepository(db)
	ctx := context.Background()

	rows := []schema.Detection{
		{AnimalID: "mouse_1", Datetime: 5_000_000},
		{AnimalID: "mouse_2", Datetime: 1_000_000},
		{AnimalID: "mouse_1", Datetime: 9_000_000},
	}
	if err := repo.ReplaceAll(ctx, rows); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	min, max, err := repo.TimeBounds(ctx)
	if err != nil {
		t.Fatalf("TimeBounds: %v", err)
	}
	if min != 1_000_000 || max != 9_000_000 {
		t.Errorf("TimeBounds = [%d, %d]", min, max)
	}
}
