package models

import "time"

// MapFeature 要素表，Wkt 为规范化后的经纬度 WKT，Geom 为同一几何的 WKB
type MapFeature struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);index"`
	Wkt       string `gorm:"type:text"`
	Geom      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
