package rodadapter

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/smartscraper/config"
)

// Defaults used when a caller does not supply one; navigation/reload
// timeouts proper always come from the request, not from here.
const (
	defaultNavigationTimeout = 45 * time.Second
	domStableDiff            = 300 * time.Millisecond
	domStableRatio           = 0.1
)

// blockedResourceTypes are always hijacked: none of them can affect the
// text content the Scoring Engine and extraction steps care about, and
// blocking them materially speeds up page load.
var blockedResourceTypes = []string{"Image", "Stylesheet", "Font", "Media"}

// setupHijack blocks the resource types in blockedResourceTypes to cut
// page-load time and bandwidth. cfg is not consulted: the blocked set is
// fixed. Returns nil only if none of those names maps to a known
// resource type.
func setupHijack(page *rod.Page, cfg config.BrowserConfig) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedResourceTypes))
	for _, name := range blockedResourceTypes {
		if rt, ok := resourceTypeByName[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
