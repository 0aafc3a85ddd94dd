package editor

import (
	"github.com/GrainArc/MapEdit/methods"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// ErrIdentityMissing 要素尚未入库，没有服务端 id，无法更新或删除
var ErrIdentityMissing = errors.New("feature has no server id")

type GeometryKind int

const (
	KindUnknown GeometryKind = iota
	KindPoint
	KindPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindPolygon:
		return "Polygon"
	}
	return "Unknown"
}

func KindOf(g orb.Geometry) GeometryKind {
	switch g.(type) {
	case orb.Point:
		return KindPoint
	case orb.Polygon:
		return KindPolygon
	}
	return KindUnknown
}

type StyleKind int

const (
	StyleArea StyleKind = iota
	StylePin
)

// Style 渲染提示，由几何类型推导，不入库
type Style struct {
	Kind    StyleKind
	Icon    string
	AnchorX float64 // 比例
	AnchorY float64 // 像素
	Width   int
	Height  int
}

var (
	PinStyle  = Style{Kind: StylePin, Icon: "img/pin.png", AnchorX: 0.5, AnchorY: 46, Width: 30, Height: 40}
	AreaStyle = Style{Kind: StyleArea}
)

func StyleFor(kind GeometryKind) Style {
	if kind == KindPoint {
		return PinStyle
	}
	return AreaStyle
}

// Feature 地图上的要素。Key 是客户端身份，ID 为 0 表示从未入库。
// Geometry 使用地图投影(EPSG:3857)。
type Feature struct {
	Key      uuid.UUID
	ID       int64
	Name     string
	Geometry orb.Geometry
	Style    Style
}

// NewFeature 绘制得到的新要素，尚无 id
func NewFeature(g orb.Geometry) *Feature {
	return &Feature{
		Key:      uuid.New(),
		Geometry: g,
		Style:    StyleFor(KindOf(g)),
	}
}

// FeatureFromWKT 由服务端记录构造要素
func FeatureFromWKT(id int64, name, wkt string) (*Feature, error) {
	g, err := methods.DecodeGeometry(wkt)
	if err != nil {
		return nil, errors.Wrapf(err, "feature %d", id)
	}
	f := NewFeature(g)
	f.ID = id
	f.Name = name
	return f, nil
}

func (f *Feature) HasID() bool {
	return f.ID != 0
}

func (f *Feature) Kind() GeometryKind {
	return KindOf(f.Geometry)
}

// WKT 经纬度 WKT
func (f *Feature) WKT() (string, error) {
	return methods.EncodeGeometry(f.Geometry)
}

func (f *Feature) Extent() orb.Bound {
	return f.Geometry.Bound()
}

// Anchor 弹窗定位点：点要素取自身，面要素取外包框中心
func (f *Feature) Anchor() orb.Point {
	if p, ok := f.Geometry.(orb.Point); ok {
		return p
	}
	return f.Extent().Center()
}

func (f *Feature) Translate(dx, dy float64) {
	f.Geometry = methods.Translate(f.Geometry, dx, dy)
}

func (f *Feature) DisplayName() string {
	if f.Name == "" {
		return "No Name"
	}
	return f.Name
}
