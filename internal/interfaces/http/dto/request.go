package dto

import (
	"github.com/gin-gonic/gin"

	"site-gen-ai-api/internal/domain/entity"
	"site-gen-ai-api/internal/domain/repository"
)

// GenerationIDParam 路由中生成记录 ID 的参数名
const GenerationIDParam = "gid"

// ListGenerationsQuery 历史列表查询参数
//
// status 可重复出现，多个状态按"或"组合；page 与 page_size 越界时收敛到默认值。
type ListGenerationsQuery struct {
	Status   []string `form:"status"`
	Template string   `form:"template"`
	Page     int      `form:"page"`
	PageSize int      `form:"page_size"`
}

// Filter 转换为仓储过滤条件，遇到未知状态或模板时返回出错的取值
func (q *ListGenerationsQuery) Filter() (*repository.GenerationRequestFilter, string, bool) {
	filter := &repository.GenerationRequestFilter{}
	for _, s := range q.Status {
		status := entity.GenerationStatus(s)
		if !status.IsValid() {
			return nil, "unknown status: " + s, false
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if q.Template != "" {
		tpl := entity.Template(q.Template)
		if !tpl.IsValid() {
			return nil, "unknown template: " + q.Template, false
		}
		filter.Template = tpl
	}
	return filter, "", true
}

func (q *ListGenerationsQuery) Pagination() repository.Pagination {
	return repository.NewPagination(q.Page, q.PageSize)
}

// GenerationID 读取路径中的生成记录 ID
func GenerationID(c *gin.Context) string {
	return c.Param(GenerationIDParam)
}
