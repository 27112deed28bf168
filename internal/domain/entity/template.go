package entity

// Template 站点模板
type Template string

const (
	TemplatePortfolio Template = "portfolio"
	TemplateBusiness  Template = "business"
	TemplateLanding   Template = "landing"
	TemplateCreative  Template = "creative"
)

// TemplateInfo 模板展示信息
type TemplateInfo struct {
	ID          Template `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
}

var templateCatalog = []TemplateInfo{
	{
		ID:          TemplatePortfolio,
		Name:        "Portfólio Profissional",
		Description: "Site perfeito para mostrar seus trabalhos e experiência",
	},
	{
		ID:          TemplateBusiness,
		Name:        "Site Empresarial",
		Description: "Apresente sua empresa com um design moderno",
	},
	{
		ID:          TemplateLanding,
		Name:        "Landing Page",
		Description: "Página de conversão otimizada para seu produto",
	},
	{
		ID:          TemplateCreative,
		Name:        "Site Criativo",
		Description: "Design único para projetos artísticos",
	},
}

// Templates 返回全部可选模板
func Templates() []TemplateInfo {
	out := make([]TemplateInfo, len(templateCatalog))
	copy(out, templateCatalog)
	return out
}

// IsValid 检查模板是否受支持
func (t Template) IsValid() bool {
	for _, info := range templateCatalog {
		if info.ID == t {
			return true
		}
	}
	return false
}
