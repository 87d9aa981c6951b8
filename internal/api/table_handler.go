package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/slot-math/internal/config"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/middleware"
)

// TableHandler 概率表查询处理器
type TableHandler struct {
	service *game.GameService
	round   config.RoundConfig
}

// NewTableHandler 创建概率表处理器
func NewTableHandler(service *game.GameService, round config.RoundConfig) *TableHandler {
	return &TableHandler{service: service, round: round}
}

// List 已加载的模式
// @Summary 模式列表
// @Tags Table
// @Produce json
// @Success 200 {object} map[string][]game.ModeTable
// @Router /api/v1/tables [get]
func (h *TableHandler) List(c *gin.Context) {
	modes := h.service.Modes()
	tables := make([]*game.ModeTable, 0, len(modes))
	for _, mode := range modes {
		mt, err := h.service.Table(mode)
		if err != nil {
			continue
		}
		tables = append(tables, mt)
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

// Get 查询单个模式的概率表摘要
// @Summary 概率表摘要
// @Tags Table
// @Produce json
// @Param mode path string true "模式"
// @Success 200 {object} game.ModeTable
// @Router /api/v1/tables/{mode} [get]
func (h *TableHandler) Get(c *gin.Context) {
	mt, err := h.service.Table(c.Param("mode"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mt)
}

// RoundConfig 回合参数摘要
// @Summary 回合参数
// @Tags Table
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/round-config [get]
func (h *TableHandler) RoundConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.round.Summary())
}
