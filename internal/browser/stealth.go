package browser

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript hides the most commonly checked automation tells. Vendor
// portals tend to sit behind the same commercial WAFs that probe these.
const stealthScript = `
(function() {
    'use strict';
    try {
        Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}
    try {
        Object.defineProperty(navigator, 'languages', { get: () => Object.freeze(['en-US', 'en']), configurable: true });
    } catch (e) {}
    try {
        if (navigator.plugins.length === 0) {
            Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3], configurable: true });
        }
    } catch (e) {}
    if (!window.chrome) {
        window.chrome = { runtime: {} };
    }
    if (navigator.hardwareConcurrency === 0) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 4, configurable: true });
    }
})();
`

// stealthAllocatorFlags are added to the launch flags when stealth is on.
func stealthAllocatorFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.Flag("accept-lang", "en-US,en;q=0.9"),
	}
}

// injectStealth registers stealthScript to run before any page script on
// every new document in the tab.
func injectStealth() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	})
}
