// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// MaxQueryLength is the maximum allowed message length in bytes (100KB).
const MaxQueryLength = 100000

// ErrQueryTooLong is returned when a message exceeds MaxQueryLength.
var ErrQueryTooLong = fmt.Errorf("query exceeds maximum length of %d bytes", MaxQueryLength)

// ValidateQuery checks the parts of a query Route cannot recover from on its own.
func ValidateQuery(q Query) error {
	if len(q.Message) > MaxQueryLength {
		return fmt.Errorf("%w: %d bytes", ErrQueryTooLong, len(q.Message))
	}
	if q.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", q.MaxTokens)
	}
	return nil
}

// Router resolves queries to catalog ids.
type Router struct {
	catalog    *catalog.Catalog
	classifier Classifier
	avail      *Availability
	logger     *zap.Logger
}

// New creates a router. A nil logger disables routing logs.
func New(cat *catalog.Catalog, classifier Classifier, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		catalog:    cat,
		classifier: classifier,
		avail:      NewAvailability(cat),
		logger:     logger,
	}
}

// Availability returns the checker the router consults.
func (r *Router) Availability() *Availability {
	return r.avail
}

// Classify runs the configured classifier.
func (r *Router) Classify(message string) Complexity {
	return r.classifier.Classify(message)
}

// Route picks one model for q. It never fails; see the package docs for the order.
func (r *Router) Route(q Query, user *profile.Profile) Decision {
	d := r.route(q, user)
	d.Available = r.avail.IsAvailable(d.Model, user)

	r.logger.Debug("ROUTE",
		zap.String("query", util.TruncateRunes(q.Message, 50)),
		zap.String("priority", string(q.Priority)),
		zap.String("rule", d.Rule.String()),
		zap.String("complexity", d.Complexity.String()),
		zap.String("model", d.Model),
		zap.Bool("available", d.Available),
		zap.String("reason", d.Reason),
	)
	return d
}

func (r *Router) route(q Query, user *profile.Profile) Decision {
	provider, providerErr := catalog.ParseProvider(q.Provider)
	hasProvider := q.Provider != "" && providerErr == nil
	knownModel := q.Model != "" && r.catalog.Has(q.Model)

	if q.Priority == PriorityManual {
		if knownModel {
			return Decision{Model: q.Model, Rule: RuleManualModel, Complexity: ComplexityMedium,
				Reason: "manual model selection"}
		}
		if hasProvider {
			return Decision{Model: r.bestInProvider(provider, user), Rule: RuleManualProvider,
				Complexity: ComplexityMedium, Reason: fmt.Sprintf("manual provider %s, best available", provider)}
		}
	}

	if knownModel {
		return Decision{Model: q.Model, Rule: RuleExplicitModel, Complexity: ComplexityMedium,
			Reason: "explicit model"}
	}

	complexity := r.classifier.Classify(q.Message)

	if hasProvider {
		model, reason := r.pickInProvider(provider, complexity, q.Priority, user)
		return Decision{Model: model, Rule: RuleProvider, Complexity: complexity, Classified: true, Reason: reason}
	}

	d := Decision{Rule: RuleAutomatic, Complexity: complexity, Classified: true}
	switch {
	case q.Priority == PriorityUrgent:
		d.Model = r.firstAvailable(catalog.FastestModels, catalog.DefaultFastest, user)
		d.Reason = "urgent: fastest available"
	case q.Priority == PriorityCostOptimized:
		d.Model = r.firstAvailable(catalog.CheapestModels, catalog.DefaultCheapest, user)
		d.Reason = "cost-optimized: cheapest available"
	case complexity == ComplexityHigh:
		d.Model = r.firstAvailable(catalog.ReasoningModels, catalog.DefaultReasoning, user)
		d.Reason = "high complexity: best reasoning model"
	case complexity == ComplexityMedium:
		d.Model = r.firstAvailable(catalog.GeneralModels, catalog.DefaultGeneral, user)
		d.Reason = "medium complexity: best general model"
	default:
		d.Model = r.firstAvailable(catalog.FastestModels, catalog.DefaultFastest, user)
		d.Reason = "low complexity: fastest available"
	}
	return d
}

// firstAvailable walks ids in order and returns the first reachable one, or fallback.
func (r *Router) firstAvailable(ids []string, fallback string, user *profile.Profile) string {
	for _, id := range ids {
		if r.avail.IsAvailable(id, user) {
			return id
		}
	}
	return fallback
}

// bestInProvider returns the first available provider model, or the provider's first.
func (r *Router) bestInProvider(p catalog.Provider, user *profile.Profile) string {
	models := r.catalog.ListByProvider(p)
	if len(models) == 0 {
		return catalog.DefaultGeneral
	}
	return r.walkFrom(models, 0, user)
}

// pickInProvider implements the provider-scoped branch. Cost-optimized wins over
// complexity so the cheapest available model is always the answer for it.
func (r *Router) pickInProvider(p catalog.Provider, c Complexity, prio Priority, user *profile.Profile) (string, string) {
	models := r.catalog.ListByProvider(p)
	if len(models) == 0 {
		return catalog.DefaultGeneral, "provider has no models"
	}

	switch {
	case prio == PriorityCostOptimized:
		return r.cheapestInProvider(models, user), fmt.Sprintf("provider %s: cheapest available", p)
	case c == ComplexityHigh:
		return r.walkFrom(models, 0, user), fmt.Sprintf("provider %s: most capable for high complexity", p)
	default:
		return r.walkFrom(models, len(models)/2, user), fmt.Sprintf("provider %s: balanced pick", p)
	}
}

// walkFrom checks models starting at start and wrapping around. Nothing
// available returns models[start].
func (r *Router) walkFrom(models []catalog.Model, start int, user *profile.Profile) string {
	for i := 0; i < len(models); i++ {
		m := models[(start+i)%len(models)]
		if r.avail.IsAvailable(m.ID, user) {
			return m.ID
		}
	}
	return models[start].ID
}

// cheapestInProvider returns the available model with the lowest output price,
// ties broken by catalog order. Nothing available returns the last listed model.
func (r *Router) cheapestInProvider(models []catalog.Model, user *profile.Profile) string {
	best := -1
	for i, m := range models {
		if !r.avail.IsAvailable(m.ID, user) {
			continue
		}
		if best < 0 || m.OutputCost.LessThan(models[best].OutputCost) {
			best = i
		}
	}
	if best < 0 {
		return models[len(models)-1].ID
	}
	return models[best].ID
}
