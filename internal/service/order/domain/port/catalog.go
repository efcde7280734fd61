// internal/service/order/domain/port/catalog.go
package port

import "context"

// BookInfo 是目录服务返回的图书展示信息。
type BookInfo struct {
	ID     uint64 `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Image  string `json:"image,omitempty"`
}

// CatalogService 是目录子系统的批量查询端口，用于给订单行项目
// 补充展示信息。纯读取，无一致性要求，适配器前面挂了读穿缓存。
type CatalogService interface {
	GetBooks(ctx context.Context, ids []uint64) (map[uint64]BookInfo, error)
}
