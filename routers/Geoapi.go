package routers

import (
	"github.com/GrainArc/MapEdit/metrics"
	"github.com/GrainArc/MapEdit/views"
	"github.com/gin-gonic/gin"
)

// FeatureRouters 要素接口、变更推送与指标
func FeatureRouters(r *gin.Engine, fc *views.FeatureController) {
	r.Use(Metrics())
	featureRouter := r.Group("/features")
	{
		featureRouter.GET("", fc.GetFeatures)
		featureRouter.POST("", fc.AddFeature)
		featureRouter.PUT("", fc.ChangeFeature)
		featureRouter.DELETE("/:id", fc.DelFeature)
		featureRouter.GET("/records", fc.GetChangeRecord)
		featureRouter.GET("/events", fc.FeatureEvents)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// NewEngine 组装完整的 gin 引擎
func NewEngine(fc *views.FeatureController) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger())
	FeatureRouters(r, fc)
	return r
}
