// internal/service/order/domain/port/identity.go
package port

import "context"

// UserInfo 是身份服务校验通过后返回的调用者信息。
type UserInfo struct {
	UserID uint64
	Role   string
}

// IdentityService 是外部身份校验服务的端口，由 HTTP 适配器实现。
// 订单服务的请求层用它换取 purchaser id，token 的签发与管理不在本核心内。
type IdentityService interface {
	Validate(ctx context.Context, bearerToken string) (UserInfo, error)
}
