package service

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/gymledger/internal/config"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	"github.com/smallbiznis/gymledger/internal/routing/domain"
	vatdomain "github.com/smallbiznis/gymledger/internal/vat/domain"
)

// selection is the outcome of one pass over a position snapshot.
type selection struct {
	position   vatdomain.Position
	method     domain.Method
	confidence domain.Confidence
	reason     string
}

// selectEntity is deterministic for a given snapshot, catalog and config.
func selectEntity(
	positions []vatdomain.Position,
	catalog []entitydomain.ServiceCatalog,
	cfg config.RoutingConfig,
	req domain.RouteRequest,
) (selection, error) {
	if req.Amount <= 0 {
		return selection{}, domain.ErrInvalidAmount
	}

	if req.Override != nil {
		position, ok := lo.Find(positions, func(p vatdomain.Position) bool {
			return p.EntityID == req.Override.EntityID
		})
		if !ok {
			return selection{}, domain.ErrInvalidEntity
		}
		reason := "manual override"
		if r := strings.TrimSpace(req.Override.Reason); r != "" {
			reason = "manual override: " + r
		}
		return selection{
			position:   position,
			method:     domain.MethodManualOverride,
			confidence: domain.ConfidenceForced,
			reason:     reason,
		}, nil
	}

	viable := lo.Filter(positions, func(p vatdomain.Position, _ int) bool {
		return p.Headroom-cfg.SafetyBuffer >= req.Amount && p.Risk != vatdomain.RiskExceeded
	})
	if len(viable) == 0 {
		return selection{}, domain.ErrNoViableEntity
	}

	chosen, method, reason := pick(viable, catalog, cfg, req.MembershipType)
	confidence := confidenceFor(chosen)
	if len(viable) == 1 {
		confidence = domain.ConfidenceForced
	}
	return selection{
		position:   chosen,
		method:     method,
		confidence: confidence,
		reason:     reason,
	}, nil
}

func pick(
	viable []vatdomain.Position,
	catalog []entitydomain.ServiceCatalog,
	cfg config.RoutingConfig,
	membershipType string,
) (vatdomain.Position, domain.Method, string) {
	membershipType = strings.ToUpper(strings.TrimSpace(membershipType))
	preferred := cfg.PreferredNames(membershipType)

	if len(preferred) > 0 {
		for _, name := range preferred {
			for _, p := range viable {
				if !sameName(p.Name, name) {
					continue
				}
				if catalogBacks(catalog, p, membershipType) {
					return p, domain.MethodServicePreference,
						fmt.Sprintf("service preference for %s confirmed by catalog", membershipType)
				}
			}
		}
		for _, name := range preferred {
			if p, ok := lo.Find(viable, func(p vatdomain.Position) bool { return sameName(p.Name, name) }); ok {
				return p, domain.MethodServicePreference,
					fmt.Sprintf("service preference for %s matched by name", membershipType)
			}
		}
	}

	band := lo.Filter(viable, func(p vatdomain.Position, _ int) bool {
		return p.Utilization >= cfg.LoadBand.Min && p.Utilization <= cfg.LoadBand.Max
	})
	if len(band) > 0 {
		return lo.MaxBy(band, moreHeadroom), domain.MethodLoadBalancing,
			fmt.Sprintf("utilization within %.0f%%-%.0f%% band", cfg.LoadBand.Min*100, cfg.LoadBand.Max*100)
	}

	return lo.MaxBy(viable, moreHeadroom), domain.MethodFallback, "largest remaining headroom"
}

func catalogBacks(catalog []entitydomain.ServiceCatalog, p vatdomain.Position, membershipType string) bool {
	return lo.SomeBy(catalog, func(item entitydomain.ServiceCatalog) bool {
		return item.IsActive &&
			item.PreferredEntityID != nil &&
			*item.PreferredEntityID == p.EntityID &&
			item.Covers(membershipType)
	})
}

// moreHeadroom orders by headroom, then name, then id so ties stay stable.
func moreHeadroom(a, b vatdomain.Position) bool {
	if a.Headroom != b.Headroom {
		return a.Headroom > b.Headroom
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.EntityID < b.EntityID
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func confidenceFor(p vatdomain.Position) domain.Confidence {
	switch {
	case p.Headroom > 30000 && p.Risk == vatdomain.RiskLow:
		return domain.ConfidenceHigh
	case p.Headroom > 15000 && (p.Risk == vatdomain.RiskLow || p.Risk == vatdomain.RiskMedium):
		return domain.ConfidenceMedium
	case p.Headroom > 5000 && p.Risk != vatdomain.RiskCritical:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
