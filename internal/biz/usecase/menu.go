package usecase

import (
	"fmt"
	"strings"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
)

// MenuConfig contains the texts of the deterministic catalog menu
type MenuConfig struct {
	Greeting     string   // First line of the menu
	EmptyCatalog string   // Shown when nothing is available
	Footer       string   // Last line of the menu
	Actions      []string // Fixed quick-reply labels
}

// BuildMenu renders the available catalog grouped by category
func BuildMenu(items []domain.CatalogItem, cfg MenuConfig) (string, []string) {
	var sb strings.Builder
	sb.WriteString(cfg.Greeting)

	groups := domain.GroupByCategory(items)
	if len(groups) == 0 {
		if cfg.EmptyCatalog != "" {
			sb.WriteString("\n\n")
			sb.WriteString(cfg.EmptyCatalog)
		}
	}

	for _, g := range groups {
		sb.WriteString("\n\n*")
		sb.WriteString(g.Category)
		sb.WriteString("*")
		for _, item := range g.Items {
			sb.WriteString(fmt.Sprintf("\n• %s: %s", item.Name, item.PriceLabel()))
		}
	}

	if cfg.Footer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(cfg.Footer)
	}

	return strings.TrimSpace(sb.String()), cfg.Actions
}
