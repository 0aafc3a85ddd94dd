package views

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/GrainArc/MapEdit/logger"
	"github.com/GrainArc/MapEdit/methods"
	"github.com/GrainArc/MapEdit/services"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// SessionHeader 客户端会话标识，写入变更事件的 origin
const SessionHeader = "X-Mapedit-Session"

// FeatureController 要素接口
type FeatureController struct {
	service *services.FeatureService
	hub     *services.EventHub
}

func NewFeatureController(service *services.FeatureService, hub *services.EventHub) *FeatureController {
	return &FeatureController{service: service, hub: hub}
}

type featureBody struct {
	ID   int64  `json:"id"`
	WKT  string `json:"wkt"`
	Name string `json:"name"`
}

// fail 按错误类型返回 400/404/500
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrInvalidFeature):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrFeatureNotFound):
		status = http.StatusNotFound
	default:
		logger.L().Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GetFeatures 获取全部要素
func (fc *FeatureController) GetFeatures(c *gin.Context) {
	list, err := fc.service.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	body, err := json.Marshal(gin.H{"responseData": list})
	if err != nil {
		fail(c, errors.Wrap(err, "encode features"))
		return
	}
	etag := methods.ETag(body)
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// AddFeature 新增要素
func (fc *FeatureController) AddFeature(c *gin.Context) {
	var body featureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := fc.service.Create(c.Request.Context(), body.WKT, body.Name, c.GetHeader(SessionHeader))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responseData": f})
}

// ChangeFeature 修改要素
func (fc *FeatureController) ChangeFeature(c *gin.Context) {
	var body featureBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := fc.service.Update(c.Request.Context(), body.ID, body.WKT, body.Name, c.GetHeader(SessionHeader))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responseData": f})
}

// DelFeature 删除要素
func (fc *FeatureController) DelFeature(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := fc.service.Delete(c.Request.Context(), id, c.GetHeader(SessionHeader)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responseData": "ok"})
}

// GetChangeRecord 获取要素的修改记录
func (fc *FeatureController) GetChangeRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	recs, err := fc.service.Records(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responseData": recs})
}
