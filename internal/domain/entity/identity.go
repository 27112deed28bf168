package entity

// Provider 第三方登录提供方
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

// IsValid 检查提供方是否受支持
func (p Provider) IsValid() bool {
	return p == ProviderGitHub || p == ProviderGitLab
}

// Identity 当前登录用户
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Provider Provider `json:"provider,omitempty"`
}
