// Request handlers: the orchestrator's side of the message-bus contract
// with the popup UI and the web-app bridge.

package scan

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/settings"
	"github.com/osintkit/deepscan/pkg/tab"
)

// startRequest is the startDeepScan payload.
type startRequest struct {
	IdentifierType  profile.IdentifierType `json:"identifierType"`
	IdentifierValue string                 `json:"identifierValue"`
	Platforms       []platform.ID          `json:"platforms"`
}

// sendToBackendRequest is the sendToBackend payload.
type sendToBackendRequest struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// extractRequest is the payload for the direct extractor actions
// (checkAuthentication, extractSearchResults, extractProfileData,
// performSearch). URL overrides the default target page.
type extractRequest struct {
	Platform       platform.ID            `json:"platform"`
	Query          string                 `json:"query,omitempty"`
	IdentifierType profile.IdentifierType `json:"identifierType,omitempty"`
	URL            string                 `json:"url,omitempty"`
}

// RegisterHandlers wires the orchestrator's inbound actions onto d.
func (e *Engine) RegisterHandlers(d *bus.Dispatcher, store *settings.Store) {
	d.Handle(bus.ActionStartDeepScan, func(ctx context.Context, payload json.RawMessage) bus.Response {
		var req startRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return bus.Fail("Invalid scan request: " + err.Error())
		}
		scanID, err := e.Start(ctx, req.IdentifierType, req.IdentifierValue, req.Platforms)
		if err != nil {
			if errors.Is(err, profile.ErrScanInProgress) {
				return bus.Fail("A scan is already in progress")
			}
			return bus.Fail(err.Error())
		}
		resp := bus.OK()
		resp.ScanID = scanID
		return resp
	})

	d.Handle(bus.ActionGetScanStatus, func(_ context.Context, _ json.RawMessage) bus.Response {
		resp := bus.OK()
		if scan := e.Status(); scan != nil {
			resp.Status = scan.Status
			resp.Scan = scan
		} else {
			resp.Status = profile.StatusIdle
		}
		return resp
	})

	d.Handle(bus.ActionCancelScan, func(ctx context.Context, _ json.RawMessage) bus.Response {
		if err := e.Cancel(ctx); err != nil {
			return bus.Fail("No scan in progress")
		}
		return bus.OK()
	})

	d.Handle(bus.ActionGetAPIURL, func(ctx context.Context, _ json.RawMessage) bus.Response {
		resp := bus.OK()
		if store != nil {
			resp.URL = store.APIURL(ctx)
		} else {
			resp.URL = settings.DefaultAPIURL
		}
		return resp
	})

	d.Handle(bus.ActionSendToBackend, func(ctx context.Context, payload json.RawMessage) bus.Response {
		if e.backend == nil {
			return bus.Fail("Backend is not configured")
		}
		var req sendToBackendRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return bus.Fail("Invalid backend request: " + err.Error())
		}
		data, err := e.backend.Send(ctx, req.Endpoint, req.Data)
		if err != nil {
			return bus.Fail(err.Error())
		}
		resp := bus.OK()
		if len(data) > 0 {
			resp.Data = json.RawMessage(data)
		}
		return resp
	})

	d.Handle(bus.ActionCheckAuth, func(ctx context.Context, payload json.RawMessage) bus.Response {
		return e.withPlatformPage(ctx, payload, rootTarget,
			func(ctx context.Context, req extractRequest, ext extractor.Extractor, page tab.Page) bus.Response {
				verdict, err := ext.CheckAuthentication(ctx, page)
				if err != nil {
					return bus.Fail("Authentication probe failed: " + err.Error())
				}
				resp := bus.OK()
				resp.Data = verdict
				return resp
			})
	})

	d.Handle(bus.ActionExtractSearch, func(ctx context.Context, payload json.RawMessage) bus.Response {
		return e.withPlatformPage(ctx, payload, searchTarget,
			func(ctx context.Context, req extractRequest, ext extractor.Extractor, page tab.Page) bus.Response {
				q := extractor.Query{Value: req.Query, Type: req.IdentifierType}
				if err := ext.ExtractSearchResults(ctx, page, q); err != nil {
					return bus.Fail("Extraction failed: " + err.Error())
				}
				return bus.OK()
			})
	})

	d.Handle(bus.ActionExtractProfile, func(ctx context.Context, payload json.RawMessage) bus.Response {
		return e.withPlatformPage(ctx, payload, profileTarget,
			func(ctx context.Context, req extractRequest, ext extractor.Extractor, page tab.Page) bus.Response {
				if err := ext.ExtractProfileData(ctx, page); err != nil {
					return bus.Fail("Extraction failed: " + err.Error())
				}
				return bus.OK()
			})
	})

	d.Handle(bus.ActionPerformSearch, func(ctx context.Context, payload json.RawMessage) bus.Response {
		return e.withPlatformPage(ctx, payload, searchTarget,
			func(ctx context.Context, req extractRequest, ext extractor.Extractor, page tab.Page) bus.Response {
				searcher, ok := ext.(extractor.Searcher)
				if !ok {
					return bus.Fail("Platform does not support interactive search")
				}
				if err := searcher.PerformSearch(ctx, page, req.Query); err != nil {
					return bus.Fail("Search failed: " + err.Error())
				}
				return bus.OK()
			})
	})
}

// Target-URL policies for the direct extractor actions. An explicit url in
// the request always wins.
func rootTarget(req extractRequest, desc *platform.Descriptor) string {
	if req.URL != "" {
		return req.URL
	}
	return desc.RootURL
}

func searchTarget(req extractRequest, desc *platform.Descriptor) string {
	if req.URL != "" {
		return req.URL
	}
	return desc.SearchURLFor(req.Query)
}

func profileTarget(req extractRequest, _ *platform.Descriptor) string {
	return req.URL
}

// withPlatformPage decodes a direct extractor request, opens a background
// tab on the target page, waits for it to load, and hands the page to op.
// The tab is closed before the reply goes out.
func (e *Engine) withPlatformPage(
	ctx context.Context,
	payload json.RawMessage,
	target func(extractRequest, *platform.Descriptor) string,
	op func(context.Context, extractRequest, extractor.Extractor, tab.Page) bus.Response,
) bus.Response {
	var req extractRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return bus.Fail("Invalid request: " + err.Error())
	}
	desc, err := platform.Lookup(req.Platform)
	if err != nil {
		return bus.Fail("Unknown platform: " + string(req.Platform))
	}
	ext := e.extractors[desc.ID]
	if ext == nil {
		return bus.Fail("No extractor available for " + desc.Name)
	}
	url := target(req, desc)
	if url == "" {
		return bus.Fail("Missing target url")
	}

	tabID, err := e.tabs.Create(ctx, url, false)
	if err != nil {
		return bus.Fail("Could not open a tab: " + err.Error())
	}
	defer func() {
		if closeErr := e.tabs.Close(tabID); closeErr != nil {
			e.logger.WarnContext(ctx, "tab close failed", "tab", tabID, "error", closeErr)
		}
	}()

	if err := e.tabs.AwaitLoad(ctx, tabID, e.cfg.PageLoadTimeout); err != nil {
		return bus.Fail("Page load timeout")
	}
	if err := extractor.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return bus.Fail(err.Error())
	}
	page, err := e.tabs.Page(tabID)
	if err != nil {
		return bus.Fail("Tab is gone: " + err.Error())
	}
	return op(ctx, req, ext, page)
}
