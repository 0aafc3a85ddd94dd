package methods

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
)

// GeometryToWKB 经纬度几何转 WKB，写入要素表的 geom 列
func GeometryToWKB(g orb.Geometry) ([]byte, error) {
	return wkb.Marshal(g)
}

// WKBToGeometry geom 列还原为几何
func WKBToGeometry(b []byte) (orb.Geometry, error) {
	return wkb.Unmarshal(b)
}

// FeatureGeoJSON 单要素转 FeatureCollection 文本，用于编辑记录
func FeatureGeoJSON(id int64, name string, g orb.Geometry) ([]byte, error) {
	feature := geojson.NewFeature(g)
	feature.Properties["id"] = id
	feature.Properties["name"] = name
	fc := geojson.NewFeatureCollection()
	fc.Append(feature)
	return json.MarshalIndent(fc, "", "  ")
}

// EmptyGeoJSON 空 FeatureCollection，新增前与删除后的快照
func EmptyGeoJSON() []byte {
	data, _ := json.Marshal(geojson.NewFeatureCollection())
	return data
}
