package services

import (
	"context"
	"strings"
	"time"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/methods"
	"github.com/GrainArc/MapEdit/metrics"
	"github.com/GrainArc/MapEdit/models"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrFeatureNotFound = errors.New("feature not found")
	ErrInvalidFeature  = errors.New("invalid feature")
)

// Feature 对外的要素记录
type Feature struct {
	ID   int64  `json:"id"`
	WKT  string `json:"wkt"`
	Name string `json:"name"`
}

func featureOf(m models.MapFeature) Feature {
	return Feature{ID: m.ID, WKT: m.Wkt, Name: m.Name}
}

// FeatureService 要素增删改查，每次修改写入编辑记录、清空列表缓存并广播变更
type FeatureService struct {
	db    *gorm.DB
	cache *ListCache
	hub   *EventHub
}

func NewFeatureService(db *gorm.DB, cache *ListCache, hub *EventHub) *FeatureService {
	return &FeatureService{db: db, cache: cache, hub: hub}
}

// List 按 id 升序返回全部要素
func (s *FeatureService) List(ctx context.Context) ([]Feature, error) {
	if fs, ok := s.cache.Get(); ok {
		metrics.ListCacheHitsTotal.Inc()
		return fs, nil
	}
	metrics.ListCacheMissesTotal.Inc()
	gen := s.cache.Generation()

	var rows []models.MapFeature
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query features")
	}
	out := make([]Feature, 0, len(rows))
	for _, r := range rows {
		out = append(out, featureOf(r))
	}
	s.cache.Set(gen, out)
	return out, nil
}

func (s *FeatureService) Get(ctx context.Context, id int64) (Feature, error) {
	var row models.MapFeature
	if err := s.first(s.db.WithContext(ctx), id, &row); err != nil {
		return Feature{}, err
	}
	return featureOf(row), nil
}

// prepare 校验名称与 WKT，返回规范化的要素行
func prepare(wkt, name string) (models.MapFeature, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.MapFeature{}, errors.Wrap(ErrInvalidFeature, "name is required")
	}
	canonical, g, err := methods.CanonicalWKT(wkt)
	if err != nil {
		return models.MapFeature{}, errors.Wrapf(ErrInvalidFeature, "%v", err)
	}
	geom, err := methods.GeometryToWKB(g)
	if err != nil {
		return models.MapFeature{}, errors.Wrap(err, "encode wkb")
	}
	return models.MapFeature{Name: name, Wkt: canonical, Geom: geom}, nil
}

func (s *FeatureService) first(tx *gorm.DB, id int64, row *models.MapFeature) error {
	err := tx.First(row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrFeatureNotFound, "feature %d", id)
	}
	return errors.Wrapf(err, "load feature %d", id)
}

func snapshot(row models.MapFeature) (datatypes.JSON, error) {
	g, err := methods.WKBToGeometry(row.Geom)
	if err != nil {
		// 旧数据可能没有 WKB，退回 WKT
		if g, err = methods.ParseWKT(row.Wkt); err != nil {
			return nil, err
		}
	}
	data, err := methods.FeatureGeoJSON(row.ID, row.Name, g)
	return datatypes.JSON(data), err
}

func now() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// Create 新增要素，origin 为发起请求的客户端会话
func (s *FeatureService) Create(ctx context.Context, wkt, name, origin string) (Feature, error) {
	row, err := prepare(wkt, name)
	if err != nil {
		return Feature{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return errors.Wrap(err, "insert feature")
		}
		newJSON, err := snapshot(row)
		if err != nil {
			return errors.Wrap(err, "snapshot feature")
		}
		record := models.FeatureRecord{FeatureID: row.ID, Type: models.RecordCreate, Date: now(), OldGeojson: methods.EmptyGeoJSON(), NewGeojson: newJSON}
		return errors.Wrap(tx.Create(&record).Error, "insert record")
	})
	if err != nil {
		return Feature{}, err
	}

	s.changed(EventCreated, row.ID, origin)
	return featureOf(row), nil
}

func (s *FeatureService) Update(ctx context.Context, id int64, wkt, name, origin string) (Feature, error) {
	if id <= 0 {
		return Feature{}, errors.Wrap(ErrInvalidFeature, "id is required")
	}
	next, err := prepare(wkt, name)
	if err != nil {
		return Feature{}, err
	}

	var row models.MapFeature
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.first(tx, id, &row); err != nil {
			return err
		}
		oldJSON, err := snapshot(row)
		if err != nil {
			return errors.Wrap(err, "snapshot feature")
		}
		row.Name, row.Wkt, row.Geom = next.Name, next.Wkt, next.Geom
		if err := tx.Save(&row).Error; err != nil {
			return errors.Wrap(err, "update feature")
		}
		newJSON, err := snapshot(row)
		if err != nil {
			return errors.Wrap(err, "snapshot feature")
		}
		record := models.FeatureRecord{FeatureID: id, Type: models.RecordUpdate, Date: now(), OldGeojson: oldJSON, NewGeojson: newJSON}
		return errors.Wrap(tx.Create(&record).Error, "insert record")
	})
	if err != nil {
		return Feature{}, err
	}

	s.changed(EventUpdated, id, origin)
	return featureOf(row), nil
}

func (s *FeatureService) Delete(ctx context.Context, id int64, origin string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.MapFeature
		if err := s.first(tx, id, &row); err != nil {
			return err
		}
		oldJSON, err := snapshot(row)
		if err != nil {
			return errors.Wrap(err, "snapshot feature")
		}
		if err := tx.Delete(&row).Error; err != nil {
			return errors.Wrap(err, "delete feature")
		}
		record := models.FeatureRecord{FeatureID: id, Type: models.RecordDelete, Date: now(), OldGeojson: oldJSON, NewGeojson: methods.EmptyGeoJSON()}
		return errors.Wrap(tx.Create(&record).Error, "insert record")
	})
	if err != nil {
		return err
	}

	s.changed(EventDeleted, id, origin)
	return nil
}

// Records 要素的编辑历史，按时间先后
func (s *FeatureService) Records(ctx context.Context, id int64) ([]models.FeatureRecord, error) {
	out := make([]models.FeatureRecord, 0)
	err := s.db.WithContext(ctx).Where("feature_id = ?", id).Order("id").Find(&out).Error
	return out, errors.Wrapf(err, "query records of %d", id)
}

// changed 修改提交后清空列表缓存并广播
func (s *FeatureService) changed(kind string, id int64, origin string) {
	s.cache.Invalidate()
	metrics.FeatureMutationsTotal.WithLabelValues(kind).Inc()
	logger.L().Infow("feature changed", "type", kind, "id", id)
	s.hub.Publish(ChangeEvent{Type: kind, ID: id, Origin: origin})
}
