package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GrainArc/MapEdit/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestService(t *testing.T) (*FeatureService, *ListCache, *EventHub) {
	cache := NewListCache(time.Minute)
	hub := NewEventHub(16)
	return NewFeatureService(openTestDB(t), cache, hub), cache, hub
}

func TestFeatureServiceCRUD(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := s.Create(ctx, "point ( 35 39 )", "  A ", "")
	require.NoError(t, err)
	assert.Equal(t, Feature{ID: 1, WKT: "POINT(35 39)", Name: "A"}, a)

	b, err := s.Create(ctx, "POLYGON ((35 39, 36 39, 36 40))", "Zone1", "")
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((35 39,36 39,36 40,35 39))", b.WKT)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Feature{a, b}, list)

	up, err := s.Update(ctx, a.ID, "POINT (1 2)", "A2", "")
	require.NoError(t, err)
	assert.Equal(t, Feature{ID: 1, WKT: "POINT(1 2)", Name: "A2"}, up)
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, up, got)

	require.NoError(t, s.Delete(ctx, b.ID, ""))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Feature{up}, list)
}

func TestFeatureServiceValidation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "POINT (1 2)", " ", "")
	assert.ErrorIs(t, err, ErrInvalidFeature)
	_, err = s.Create(ctx, "LINESTRING (0 0, 1 1)", "line", "")
	assert.ErrorIs(t, err, ErrInvalidFeature)
	_, err = s.Create(ctx, "POINT (35 95)", "north", "")
	assert.ErrorIs(t, err, ErrInvalidFeature)
	_, err = s.Create(ctx, "POINT (NaN NaN)", "nan", "")
	assert.ErrorIs(t, err, ErrInvalidFeature)
	_, err = s.Update(ctx, 0, "POINT (1 2)", "x", "")
	assert.ErrorIs(t, err, ErrInvalidFeature)

	_, err = s.Update(ctx, 42, "POINT (1 2)", "x", "")
	assert.ErrorIs(t, err, ErrFeatureNotFound)
	assert.ErrorIs(t, s.Delete(ctx, 42, ""), ErrFeatureNotFound)
	_, err = s.Get(ctx, 42)
	assert.ErrorIs(t, err, ErrFeatureNotFound)
}

func TestFeatureServiceRecords(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	f, err := s.Create(ctx, "POINT (35 39)", "A", "")
	require.NoError(t, err)
	_, err = s.Update(ctx, f.ID, "POINT (36 39)", "A", "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, f.ID, ""))

	recs, err := s.Records(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{models.RecordCreate, models.RecordUpdate, models.RecordDelete},
		[]string{recs[0].Type, recs[1].Type, recs[2].Type})
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(recs[0].OldGeojson))
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(recs[2].NewGeojson))

	var fc struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(recs[1].NewGeojson, &fc))
	require.Len(t, fc.Features, 1)
	assert.Equal(t, []float64{36, 39}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "A", fc.Features[0].Properties["name"])

	require.NoError(t, json.Unmarshal(recs[1].OldGeojson, &fc))
	assert.Equal(t, []float64{35, 39}, fc.Features[0].Geometry.Coordinates)
}

func TestFeatureServiceInvalidatesCache(t *testing.T) {
	s, cache, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.List(ctx)
	require.NoError(t, err)
	assert.True(t, cache.Cached())

	_, err = s.Create(ctx, "POINT (35 39)", "A", "")
	require.NoError(t, err)
	assert.False(t, cache.Cached())

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFeatureServicePublishesEvents(t *testing.T) {
	s, _, hub := newTestService(t)
	ctx := context.Background()
	events, cancel := hub.Subscribe()
	defer cancel()

	f, err := s.Create(ctx, "POINT (35 39)", "A", "session-1")
	require.NoError(t, err)
	_, err = s.Update(ctx, f.ID, "POINT (35 40)", "A", "session-2")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, f.ID, ""))
	// 失败的修改不广播
	_, err = s.Update(ctx, f.ID, "POINT (35 40)", "A", "")
	require.Error(t, err)

	assert.Equal(t, ChangeEvent{Type: EventCreated, ID: f.ID, Origin: "session-1"}, <-events)
	assert.Equal(t, ChangeEvent{Type: EventUpdated, ID: f.ID, Origin: "session-2"}, <-events)
	assert.Equal(t, ChangeEvent{Type: EventDeleted, ID: f.ID}, <-events)
	assert.Empty(t, events)
}

func TestListCacheDropsStaleGeneration(t *testing.T) {
	c := NewListCache(time.Minute)

	gen := c.Generation()
	c.Invalidate()
	assert.False(t, c.Set(gen, []Feature{{ID: 1}}))
	_, ok := c.Get()
	assert.False(t, ok)

	require.True(t, c.Set(c.Generation(), []Feature{{ID: 2}}))
	got, ok := c.Get()
	require.True(t, ok)
	got[0].ID = 99
	again, _ := c.Get()
	assert.Equal(t, int64(2), again[0].ID)
}

func TestListCacheDisabled(t *testing.T) {
	c := NewListCache(0)
	assert.False(t, c.Set(c.Generation(), []Feature{{ID: 1}}))
	_, ok := c.Get()
	assert.False(t, ok)
}

func TestListCacheExpires(t *testing.T) {
	c := NewListCache(time.Millisecond)
	require.True(t, c.Set(c.Generation(), []Feature{{ID: 1}}))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.Cached())
}

// 列表查询与提交交错：查询返回后、写缓存前另一次新增已提交
func TestListDoesNotCacheListOverlappingWrite(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	fired := false
	err := s.db.Callback().Query().After("gorm:query").Register("test:interleave", func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		_, err := s.Create(ctx, "POINT (1 2)", "Zone1", "")
		assert.NoError(t, err)
	})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	require.True(t, fired)

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Zone1", list[0].Name)
}

func TestEventHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewEventHub(1)
	ch, cancel := hub.Subscribe()
	assert.Equal(t, 1, hub.Subscribers())

	hub.Publish(ChangeEvent{Type: EventCreated, ID: 1})
	hub.Publish(ChangeEvent{Type: EventCreated, ID: 2})
	assert.Equal(t, int64(1), (<-ch).ID)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Subscribers())
}
