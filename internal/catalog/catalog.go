// Package catalog is the single authority for bookable services and
// subscription plans. Every price in the system originates here; request
// payloads never carry an amount.
package catalog

// Kind distinguishes pay-per-visit services from recurring plans.
type Kind string

const (
	KindOneOff           Kind = "one_off"
	KindSubscriptionPlan Kind = "subscription_plan"
)

// Service is an immutable catalog entry. PriceCents is the authoritative
// charge in USD minor units. VisitLimit is only set for subscription plans;
// nil means unlimited visits per billing cycle.
type Service struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PriceCents  int64  `json:"price_cents"`
	Kind        Kind   `json:"kind"`
	Category    string `json:"category"`
	Description string `json:"description"`
	VisitLimit  *int   `json:"visit_limit,omitempty"`
}

// Catalog is a load-once value object injected into the booking scheduler.
type Catalog struct {
	services map[string]Service
	ordered  []Service
}

// New builds a catalog from the given entries. Later duplicates win, which
// keeps seed overrides simple in tests.
func New(services ...Service) *Catalog {
	c := &Catalog{services: make(map[string]Service, len(services))}
	for _, s := range services {
		if _, exists := c.services[s.ID]; !exists {
			c.ordered = append(c.ordered, s)
		} else {
			for i := range c.ordered {
				if c.ordered[i].ID == s.ID {
					c.ordered[i] = s
					break
				}
			}
		}
		c.services[s.ID] = s
	}
	return c
}

// Lookup returns the service for id. Pure and side-effect free.
func (c *Catalog) Lookup(id string) (Service, bool) {
	s, ok := c.services[id]
	return s, ok
}

// List returns all entries in declaration order.
func (c *Catalog) List() []Service {
	out := make([]Service, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func limit(n int) *int { return &n }

// Default returns the production MedRx catalog: weight-loss, hormone and
// hair-loss consultations plus the two membership tiers.
func Default() *Catalog {
	return New(
		Service{
			ID:          "glp1-weight-loss",
			Title:       "GLP-1 Weight Loss Program",
			PriceCents:  17500,
			Kind:        KindOneOff,
			Category:    "weight-loss",
			Description: "Semaglutide and Tirzepatide programs",
		},
		Service{
			ID:          "hormone-health",
			Title:       "Hormone Optimization",
			PriceCents:  17500,
			Kind:        KindOneOff,
			Category:    "hormones",
			Description: "Comprehensive hormone health consultation",
		},
		Service{
			ID:          "hair-loss",
			Title:       "Medical Hair Restoration",
			PriceCents:  17500,
			Kind:        KindOneOff,
			Category:    "hair-loss",
			Description: "Hair loss treatment consultation",
		},
		Service{
			ID:          "sub-basic",
			Title:       "Basic Access",
			PriceCents:  3500,
			Kind:        KindSubscriptionPlan,
			Category:    "membership",
			Description: "Essential telemedicine access for occasional healthcare needs",
			VisitLimit:  limit(2),
		},
		Service{
			ID:          "sub-standard",
			Title:       "Standard Care",
			PriceCents:  15000,
			Kind:        KindSubscriptionPlan,
			Category:    "membership",
			Description: "Unlimited general medicine consults with priority booking",
		},
	)
}
