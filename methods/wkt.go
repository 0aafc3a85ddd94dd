package methods

import (
	"math"
	"regexp"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/project"
	"github.com/pkg/errors"
)

var (
	ErrInvalidWKT          = errors.New("invalid wkt")
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")
)

// 经纬度保留 9 位小数，保证投影往返后的文本稳定
const coordScale = 1e9

var (
	reOpen  = regexp.MustCompile(`\s*\(\s*`)
	reClose = regexp.MustCompile(`\s*\)`)
	reComma = regexp.MustCompile(`\s*,\s*`)
	reSpace = regexp.MustCompile(`\s+`)
)

// normalizeWKT 统一大小写与空白，"POINT (35 39)" -> "POINT(35 39)"
func normalizeWKT(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = reOpen.ReplaceAllString(s, "(")
	s = reClose.ReplaceAllString(s, ")")
	s = reComma.ReplaceAllString(s, ",")
	return reSpace.ReplaceAllString(s, " ")
}

// ParseWKT 解析经纬度 WKT，仅支持 Point 与 Polygon，未闭合的环会被闭合
func ParseWKT(s string) (orb.Geometry, error) {
	norm := normalizeWKT(s)
	if norm == "" {
		return nil, errors.Wrap(ErrInvalidWKT, "empty")
	}
	g, err := wkt.Unmarshal(norm)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidWKT, "%q: %v", s, err)
	}
	switch g := g.(type) {
	case orb.Point:
		return g, checkLonLat(g)
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if err := checkLonLat(p); err != nil {
					return nil, err
				}
			}
		}
		return closePolygon(g)
	case nil:
		return nil, errors.Wrapf(ErrInvalidWKT, "%q", s)
	default:
		return nil, errors.Wrap(ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

// checkLonLat 经度 [-180,180]，纬度 [-90,90]，且必须是有限值
func checkLonLat(p orb.Point) error {
	lon, lat := p[0], p[1]
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return errors.Wrapf(ErrInvalidWKT, "coordinate %v is not finite", p)
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return errors.Wrapf(ErrInvalidWKT, "coordinate %v out of range", p)
	}
	return nil
}

func closePolygon(p orb.Polygon) (orb.Polygon, error) {
	if len(p) == 0 {
		return nil, errors.Wrap(ErrInvalidWKT, "empty polygon")
	}
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		if len(ring) < 3 {
			return nil, errors.Wrapf(ErrInvalidWKT, "ring %d has %d points", i, len(ring))
		}
		r := append(orb.Ring(nil), ring...)
		if !r.Closed() {
			r = append(r, r[0])
		}
		if len(r) < 4 {
			return nil, errors.Wrapf(ErrInvalidWKT, "ring %d has %d points", i, len(ring))
		}
		out[i] = r
	}
	return out, nil
}

// FormatWKT 输出经纬度几何的 WKT 文本
func FormatWKT(g orb.Geometry) (string, error) {
	switch g.(type) {
	case orb.Point, orb.Polygon:
		return wkt.MarshalString(g), nil
	case nil:
		return "", errors.Wrap(ErrUnsupportedGeometry, "nil geometry")
	}
	return "", errors.Wrap(ErrUnsupportedGeometry, g.GeoJSONType())
}

// CanonicalWKT 解析并重新输出，用于入库前统一格式
func CanonicalWKT(s string) (string, orb.Geometry, error) {
	g, err := ParseWKT(s)
	if err != nil {
		return "", nil, err
	}
	g = roundGeometry(g)
	out, err := FormatWKT(g)
	return out, g, err
}

// DecodeGeometry 经纬度 WKT -> 地图投影(EPSG:3857)几何
func DecodeGeometry(s string) (orb.Geometry, error) {
	g, err := ParseWKT(s)
	if err != nil {
		return nil, err
	}
	return ToMapProjection(g), nil
}

// EncodeGeometry 地图投影几何 -> 经纬度 WKT
func EncodeGeometry(g orb.Geometry) (string, error) {
	if g == nil {
		return "", errors.Wrap(ErrUnsupportedGeometry, "nil geometry")
	}
	return FormatWKT(roundGeometry(ToLonLat(g)))
}

func ToMapProjection(g orb.Geometry) orb.Geometry {
	return transform(g, project.WGS84.ToMercator)
}

func ToLonLat(g orb.Geometry) orb.Geometry {
	return transform(g, project.Mercator.ToWGS84)
}

// transform 返回投影后的副本，不修改入参
func transform(g orb.Geometry, proj orb.Projection) orb.Geometry {
	switch g := g.(type) {
	case orb.Point:
		return proj(g)
	case orb.Polygon:
		out := make(orb.Polygon, len(g))
		for i, ring := range g {
			r := make(orb.Ring, len(ring))
			for j, p := range ring {
				r[j] = proj(p)
			}
			out[i] = r
		}
		return out
	case nil:
		return nil
	}
	return project.Geometry(orb.Clone(g), proj)
}

func roundGeometry(g orb.Geometry) orb.Geometry {
	round := func(p orb.Point) orb.Point {
		return orb.Point{roundCoord(p[0]), roundCoord(p[1])}
	}
	return transform(g, round)
}

// roundCoord 同时消除 -0
func roundCoord(v float64) float64 {
	v = math.Round(v*coordScale) / coordScale
	if v == 0 {
		return 0
	}
	return v
}

// Translate 平移几何，返回副本
func Translate(g orb.Geometry, dx, dy float64) orb.Geometry {
	return transform(g, func(p orb.Point) orb.Point {
		return orb.Point{p[0] + dx, p[1] + dy}
	})
}
