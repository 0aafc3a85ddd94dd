package models

import "gorm.io/datatypes"

// 编辑记录类型
const (
	RecordCreate = "要素添加"
	RecordUpdate = "要素修改"
	RecordDelete = "要素删除"
)

// FeatureRecord 要素编辑记录，保存修改前后的 GeoJSON
type FeatureRecord struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	FeatureID  int64          `gorm:"index" json:"featureId"`
	Type       string         `gorm:"type:varchar(50)" json:"type"`
	Date       string         `gorm:"type:varchar(255)" json:"date"`
	OldGeojson datatypes.JSON `json:"oldGeojson"`
	NewGeojson datatypes.JSON `json:"newGeojson"`
}
