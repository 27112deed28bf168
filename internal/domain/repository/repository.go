// Package repository 定义数据访问层接口
package repository

// TxKey 事务上下文键类型
type TxKey struct{}

// 历史记录分页边界
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination 分页参数，页码从 1 开始
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// NewPagination 越界的页码与页大小收敛到合法范围
func NewPagination(page, pageSize int) Pagination {
	p := Pagination{Page: max(page, 1), PageSize: pageSize}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Pagination) Offset() int { return (p.Page - 1) * p.PageSize }

func (p Pagination) Limit() int { return p.PageSize }

// PageCount 按页大小计算总页数
func PageCount(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// PagedResult 一页查询结果及其在全集中的位置
type PagedResult[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPagedResult[T any](items []T, total int64, pagination Pagination) *PagedResult[T] {
	return &PagedResult[T]{
		Items:      items,
		Total:      total,
		Page:       pagination.Page,
		PageSize:   pagination.PageSize,
		TotalPages: PageCount(total, pagination.PageSize),
	}
}

// HasMore 之后是否还有数据
func (r *PagedResult[T]) HasMore() bool {
	return r.Page < r.TotalPages
}
