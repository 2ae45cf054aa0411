// Per-platform scan execution: navigate, authenticate, query, extract,
// retry, teardown.

package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/codeGROOVE-dev/retry"

	"github.com/osintkit/deepscan/pkg/bus"
	"github.com/osintkit/deepscan/pkg/extractor"
	"github.com/osintkit/deepscan/pkg/platform"
	"github.com/osintkit/deepscan/pkg/profile"
	"github.com/osintkit/deepscan/pkg/tab"
)

// errExtractionTimeout marks an attempt where no results arrived in time.
var errExtractionTimeout = errors.New("extraction timed out")

// scanPlatform runs one platform end to end, including retries. Errors are
// recorded on the PlatformResult and never abort the scan.
func (e *Engine) scanPlatform(ctx context.Context, scan *profile.Scan, id platform.ID, query string) {
	desc, err := platform.Lookup(id)
	if err != nil {
		e.logger.WarnContext(ctx, "skipping unknown platform", "platform", id)
		return
	}

	result := profile.NewPlatformResult(desc)
	e.mu.Lock()
	scan.Results[id] = result
	e.mu.Unlock()

	e.hub.Publish(bus.Event{Kind: bus.EventPlatformStarted, Data: map[string]any{
		"platform": id, "platformName": desc.Name, "emoji": desc.Emoji,
	}})
	e.hub.Publish(bus.Event{Kind: bus.EventPlatformScanStarted, Data: map[string]any{
		"platform": id, "platformName": desc.Name, "emoji": desc.Emoji,
	}})

	attempt := 0
	err = retry.Do(
		func() error {
			return e.attemptPlatform(ctx, desc, result, query, scan.IdentifierType)
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.MaxRetries+1),
		retry.Delay(e.cfg.RetryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return isRetryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			attempt = int(n) + 1
			e.logger.InfoContext(ctx, "retrying platform scan",
				"platform", id, "attempt", attempt+1, "error", err)
			e.mu.Lock()
			result.Status = profile.ResultScanning
			e.mu.Unlock()
		}),
	)
	if err != nil && ctx.Err() == nil {
		e.logger.WarnContext(ctx, "platform scan failed",
			"platform", id, "attempts", attempt+1, "error", err)
	}

	e.mu.Lock()
	e.classifyOutcome(result, err)
	result.Finish()
	snapshot := *result
	snapshot.Profiles = append([]*profile.Profile(nil), result.Profiles...)
	snapshot.SearchResults = append([]*profile.Profile(nil), result.SearchResults...)
	snapshot.Errors = append([]profile.PlatformError(nil), result.Errors...)
	e.mu.Unlock()

	completedData := map[string]any{
		"platform":           id,
		"platformName":       desc.Name,
		"emoji":              desc.Emoji,
		"status":             snapshot.Status,
		"profilesFound":      len(snapshot.Profiles),
		"searchResultsFound": len(snapshot.SearchResults),
		"errors":             snapshot.Errors,
	}
	e.hub.Publish(bus.Event{Kind: bus.EventPlatformCompleted, Data: completedData})
	e.hub.Publish(bus.Event{Kind: bus.EventPlatformScanCompleted, Data: completedData})
}

// attemptPlatform is one try at scanning a platform: open a tab on the
// search URL, await load, settle, probe auth, dispatch extraction, wait for
// results. The tab is always closed before returning.
func (e *Engine) attemptPlatform(
	ctx context.Context,
	desc *platform.Descriptor,
	result *profile.PlatformResult,
	query string,
	idType profile.IdentifierType,
) error {
	ext := e.extractors[desc.ID]
	if ext == nil {
		e.recordError(result, profile.ResultError, profile.PlatformError{
			Kind:    profile.KindExtractionFailed,
			Message: fmt.Sprintf("No extractor available for %s", desc.Name),
		})
		return fmt.Errorf("%w: no extractor for %s", profile.ErrExtraction, desc.ID)
	}

	url := desc.SearchURLFor(query)
	e.logger.InfoContext(ctx, "opening platform tab", "platform", desc.ID, "url", url)

	tabID, err := e.tabs.Create(ctx, url, true)
	if err != nil {
		e.recordError(result, profile.ResultError, profile.PlatformError{
			Kind:       profile.KindExtractionFailed,
			Message:    fmt.Sprintf("Could not open a tab for %s: %v", desc.Name, err),
			Suggestion: "Check that the browser is running and try again",
		})
		return fmt.Errorf("creating tab: %w", err)
	}
	defer func() {
		if closeErr := e.tabs.Close(tabID); closeErr != nil {
			e.logger.WarnContext(ctx, "tab close failed", "tab", tabID, "error", closeErr)
		}
	}()

	if err := e.tabs.AwaitLoad(ctx, tabID, e.cfg.PageLoadTimeout); err != nil {
		if errors.Is(err, tab.ErrLoadTimeout) {
			e.recordError(result, profile.ResultError, profile.PlatformError{
				Kind:       profile.KindExtractionFailed,
				Message:    "Page load timeout",
				Suggestion: fmt.Sprintf("Check your connection and that %s is reachable", desc.Name),
			})
			return profile.ErrPageLoadTimeout
		}
		return fmt.Errorf("awaiting tab load: %w", err)
	}

	if err := extractor.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return err
	}

	page, err := e.tabs.Page(tabID)
	if err != nil {
		return fmt.Errorf("resolving tab page: %w", err)
	}

	// The page surface is ready; fire the on-load extraction so results
	// arrive even before the explicit dispatch below. Failures here are
	// advisory: the explicit path reports its own errors.
	e.hub.Publish(bus.Event{Kind: bus.EventContentScriptReady, Data: map[string]any{
		"platform": desc.ID, "url": url,
	}})
	if loadErr := ext.OnPageLoad(ctx, page); loadErr != nil {
		e.logger.DebugContext(ctx, "on-load extraction failed",
			"platform", desc.ID, "error", loadErr)
	}

	verdict, err := ext.CheckAuthentication(ctx, page)
	if err != nil {
		e.recordError(result, profile.ResultError, profile.PlatformError{
			Kind:    profile.KindExtractionFailed,
			Message: fmt.Sprintf("Authentication probe failed: %v", err),
		})
		return fmt.Errorf("%w: auth probe: %w", profile.ErrExtraction, err)
	}
	if !verdict.Authenticated {
		e.recordError(result, profile.ResultAuthRequired, profile.PlatformError{
			Kind:       profile.KindAuthRequired,
			Message:    fmt.Sprintf("Not logged in to %s", desc.Name),
			Suggestion: fmt.Sprintf("Log in to %s and run the scan again", desc.Name),
			LoginURL:   verdict.LoginURL,
		})
		return fmt.Errorf("%w: %s", profile.ErrAuthRequired, desc.ID)
	}

	if desc.InteractiveSearch {
		searcher, ok := ext.(extractor.Searcher)
		if !ok {
			return fmt.Errorf("%w: %s cannot drive interactive search", profile.ErrExtraction, desc.ID)
		}
		if err := searcher.PerformSearch(ctx, page, query); err != nil {
			return e.extractionErr(result, desc, err)
		}
		if err := extractor.Sleep(ctx, e.cfg.SearchSettle); err != nil {
			return err
		}
	} else {
		q := extractor.Query{Value: query, Type: idType}
		if err := ext.ExtractSearchResults(ctx, page, q); err != nil {
			return e.extractionErr(result, desc, err)
		}
	}

	if err := e.waitForResults(ctx, result); err != nil {
		e.recordError(result, profile.ResultTimeout, profile.PlatformError{
			Kind:       profile.KindTimeout,
			Message:    fmt.Sprintf("%s did not return results in time", desc.Name),
			Suggestion: "The page may be slow; the scan will retry automatically",
		})
		return err
	}
	return nil
}

// extractionErr records a dispatch failure. Auth-gate failures are already
// recorded via the authenticationRequired event and stay non-retryable.
func (e *Engine) extractionErr(result *profile.PlatformResult, desc *platform.Descriptor, err error) error {
	if errors.Is(err, profile.ErrAuthRequired) {
		return err
	}
	e.recordError(result, profile.ResultError, profile.PlatformError{
		Kind:       profile.KindExtractionFailed,
		Message:    fmt.Sprintf("Extraction failed on %s: %v", desc.Name, err),
		Suggestion: "The page layout may have changed; the scan will retry automatically",
	})
	return fmt.Errorf("%w: %w", profile.ErrExtraction, err)
}

// waitForResults polls until the platform result leaves scanning, bounded by
// the extraction timeout.
func (e *Engine) waitForResults(ctx context.Context, result *profile.PlatformResult) error {
	deadline, cancel := context.WithTimeout(ctx, e.cfg.ExtractionTimeout)
	defer cancel()

	attempts := uint(e.cfg.ExtractionTimeout/e.cfg.PollInterval) + 1
	err := retry.Do(
		func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			if result.Status.Terminal() {
				return nil
			}
			return errExtractionTimeout
		},
		retry.Context(deadline),
		retry.Attempts(attempts),
		retry.Delay(e.cfg.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errExtractionTimeout
	}
	return nil
}

// recordError appends an error and moves the result to status, unless it is
// already terminal.
func (e *Engine) recordError(result *profile.PlatformResult, status profile.ResultStatus, perr profile.PlatformError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result.Errors = append(result.Errors, perr)
	if !result.Status.Terminal() {
		result.Status = status
	}
}

// classifyOutcome settles the final status after retries are exhausted.
// Callers hold e.mu.
func (e *Engine) classifyOutcome(result *profile.PlatformResult, err error) {
	if err == nil || result.Status.Terminal() {
		return
	}
	switch {
	case errors.Is(err, errExtractionTimeout):
		result.Status = profile.ResultTimeout
	default:
		result.Status = profile.ResultError
	}
}

// isRetryable: timeouts and extraction failures may retry; auth gates and
// page-load timeouts never do.
func isRetryable(err error) bool {
	if errors.Is(err, profile.ErrAuthRequired) || errors.Is(err, profile.ErrPageLoadTimeout) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, errExtractionTimeout) || errors.Is(err, profile.ErrExtraction)
}
