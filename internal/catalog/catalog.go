// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownModel is returned for ids not present in the catalog.
	ErrUnknownModel = errors.New("unknown model")

	// ErrUnknownProvider is returned for provider names outside the Provider enum.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Catalog is an immutable id -> Model table with per-provider ordering.
type Catalog struct {
	models     map[string]Model
	order      []string
	byProvider map[Provider][]string
}

// New builds a catalog from models in the given order. Duplicate ids are rejected.
func New(models []Model) (*Catalog, error) {
	c := &Catalog{
		models:     make(map[string]Model, len(models)),
		byProvider: make(map[Provider][]string),
	}
	for _, m := range models {
		if m.ID == "" {
			return nil, errors.New("catalog: model with empty id")
		}
		if _, dup := c.models[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate model id %q", m.ID)
		}
		if _, err := ParseProvider(string(m.Provider)); err != nil {
			return nil, fmt.Errorf("catalog: model %q: %w", m.ID, err)
		}
		m.Tags = append([]string(nil), m.Tags...)
		c.models[m.ID] = m
		c.order = append(c.order, m.ID)
		c.byProvider[m.Provider] = append(c.byProvider[m.Provider], m.ID)
	}
	return c, nil
}

// Get returns the model with the given id.
func (c *Catalog) Get(id string) (Model, error) {
	m, ok := c.models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return m, nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.models[id]
	return ok
}

// ListByProvider returns the provider's models, most capable first.
func (c *Catalog) ListByProvider(p Provider) []Model {
	ids := c.byProvider[p]
	out := make([]Model, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.models[id])
	}
	return out
}

// All returns every model in catalog order.
func (c *Catalog) All() []Model {
	out := make([]Model, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}

// IDs returns all ids sorted alphabetically.
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Index returns the position of id in catalog order, or -1.
func (c *Catalog) Index(id string) int {
	for i, v := range c.order {
		if v == id {
			return i
		}
	}
	return -1
}

// WithTransportOverrides returns a copy of the catalog with the given model
// transports replaced. Keys must be known ids.
func (c *Catalog) WithTransportOverrides(overrides map[string]Transport) (*Catalog, error) {
	models := c.All()
	for id, t := range overrides {
		i := c.Index(id)
		if i < 0 {
			return nil, fmt.Errorf("transport override: %w: %s", ErrUnknownModel, id)
		}
		if models[i].Transport == t {
			continue
		}
		models[i].Transport = t
		models[i].Adapter = DefaultAdapter(models[i].Provider, t)
	}
	return New(models)
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
