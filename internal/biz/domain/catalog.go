package domain

import (
	"fmt"
	"strings"
)

// DefaultCategory is used for items without a category
const DefaultCategory = "Geral"

// CatalogItem is a product offered by a tenant
type CatalogItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Price       float64 `json:"price"`
	Available   bool    `json:"available"`
}

// CategoryName returns the category or DefaultCategory
func (i CatalogItem) CategoryName() string {
	if c := strings.TrimSpace(i.Category); c != "" {
		return c
	}
	return DefaultCategory
}

// PriceLabel formats the price in BRL
func (i CatalogItem) PriceLabel() string {
	return fmt.Sprintf("R$ %.2f", i.Price)
}

// CatalogGroup is a category with its items
type CatalogGroup struct {
	Category string
	Items    []CatalogItem
}

// GroupByCategory groups available items, keeping first-seen category order
func GroupByCategory(items []CatalogItem) []CatalogGroup {
	var groups []CatalogGroup
	index := make(map[string]int)
	for _, item := range items {
		if !item.Available {
			continue
		}
		name := item.CategoryName()
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, CatalogGroup{Category: name})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}
