package crawler

import (
	"context"
	"log/slog"
)

// PolitenessGate decides whether a URL may be fetched right now
type PolitenessGate struct {
	robots RobotsChecker // nil disables robots.txt checks
	state  *crawlState
	logger *slog.Logger
}

// IsFetchable reports whether url may be fetched. When it may not, the
// returned reason is one of ErrorTypeHostBlocked or ErrorTypeRobotsDisallowed.
// The block check runs under the crawl state lock; the robots lookup does
// not, since it may go to the network.
func (g *PolitenessGate) IsFetchable(ctx context.Context, url string) (bool, string) {
	if g.state.isBlocked(HostOf(url)) {
		return false, ErrorTypeHostBlocked
	}

	if g.robots == nil {
		return true, ""
	}

	allowed, err := g.robots.IsAllowed(ctx, url)
	if err != nil {
		g.logger.Warn("robots.txt check failed", "url", url, "error", err)
	}
	if !allowed {
		return false, ErrorTypeRobotsDisallowed
	}
	return true, ""
}
