package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/searchprobe/internal/config"
)

// evasionsScript runs before any page script in every document of the tab.
const evasionsScript = `(() => {
  Object.defineProperty(Navigator.prototype, 'webdriver', { get: () => undefined, configurable: true });
  if (!window.chrome) { window.chrome = { runtime: {} }; }
})();`

// Persona is the browser identity a tab presents to the site.
type Persona struct {
	UserAgent string
	Locale    string
	Timezone  string
	Languages []string
}

// PersonaFromConfig returns the persona configured for cfg.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	return Persona{
		UserAgent: cfg.UserAgent,
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
		Languages: cfg.Languages,
	}
}

// AcceptLanguage renders languages as an Accept-Language header value with
// descending weights, or "" for none.
func AcceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	q := 10
	for _, l := range languages {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if len(parts) == 0 {
			parts = append(parts, l)
		} else {
			parts = append(parts, fmt.Sprintf("%s;q=0.%d", l, q))
		}
		if q > 1 {
			q--
		}
	}
	return strings.Join(parts, ",")
}

// Tasks returns the CDP actions that apply p to a tab. Empty fields leave
// Chrome's own values in place.
func (p Persona) Tasks() chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	lang := AcceptLanguage(p.Languages)
	if p.UserAgent != "" {
		override := emulation.SetUserAgentOverride(p.UserAgent)
		if lang != "" {
			override = override.WithAcceptLanguage(lang)
		}
		tasks = append(tasks, override)
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if lang != "" {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": lang}))
	}
	return tasks
}
