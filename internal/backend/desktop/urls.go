// internal/backend/desktop/urls.go
package desktop

import (
	"bytes"
	"context"
	"encoding/base64"
	"path"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
)

var (
	absoluteURL = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://\S+$`)
	urlInTitle  = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"'<>]+`)
)

// urlHelperTemplate reads the address bar through the clipboard, restoring
// the clipboard and the focused window afterwards.
var urlHelperTemplate = template.Must(template.New("url-helper").
	Funcs(template.FuncMap{"quote": shellQuote}).
	Parse(`#!/bin/sh
export DISPLAY={{quote .Display}}
WIN=$(xdotool search --onlyvisible --class {{quote .Class}} 2>/dev/null | head -n 1)
[ -z "$WIN" ] && exit 3
PREV_WIN=$(xdotool getactivewindow 2>/dev/null)
PREV_CLIP=$(xclip -o -selection clipboard 2>/dev/null)
xdotool windowactivate --sync "$WIN"
xdotool key --clearmodifiers ctrl+l
sleep 0.2
xdotool key --clearmodifiers ctrl+a ctrl+c
sleep 0.2
URL=$(xclip -o -selection clipboard 2>/dev/null)
xdotool key --clearmodifiers Escape
printf '%s' "$PREV_CLIP" | xclip -selection clipboard 2>/dev/null
[ -n "$PREV_WIN" ] && xdotool windowactivate "$PREV_WIN" 2>/dev/null
printf '%s' "$URL"
`))

// shellQuote single-quotes s for sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type urlHelperParams struct {
	Display string
	Class   string
}

func renderURLHelper(display, class string) (string, error) {
	var buf bytes.Buffer
	if err := urlHelperTemplate.Execute(&buf, urlHelperParams{Display: display, Class: class}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeFileCmd decodes content into target inside the container. Content
// travels base64-encoded as a positional argument so it is never parsed by
// the shell.
func writeFileCmd(target, content string) []string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	return []string{"sh", "-c", `printf '%s' "$1" | base64 -d > "$2" && chmod 700 "$2"`, "sh", encoded, target}
}

// urlEntry is the cached URL of one container.
type urlEntry struct {
	url string
	at  time.Time
}

// urlCache keeps the last extracted URL per container. Entries expire by age
// only; navigation does not invalidate them, so readers may see a URL up to
// one TTL old.
type urlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]urlEntry
}

func newURLCache(ttl time.Duration, now func() time.Time) *urlCache {
	return &urlCache{ttl: ttl, now: now, entries: make(map[string]urlEntry)}
}

func (c *urlCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return "", false
	}
	return e.url, true
}

// peek returns the last URL regardless of age.
func (c *urlCache) peek(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key].url
}

func (c *urlCache) put(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = urlEntry{url: url, at: c.now()}
}

// currentURL returns the browser URL inside the container, serving from the
// cache inside the TTL window. It never fails: unrecoverable URLs degrade to
// schemas.NoURL, which is cached like any other result.
func (a *Adapter) currentURL(ctx context.Context) string {
	key := a.cfg.Container
	if url, ok := a.urls.get(key); ok {
		return url
	}
	v, _, _ := a.extractions.Do(key, func() (any, error) {
		if url, ok := a.urls.get(key); ok {
			return url, nil
		}
		url := a.extractURL(ctx)
		a.urls.put(key, url)
		return url, nil
	})
	return v.(string)
}

// extractURL tries the clipboard helper, then window titles, then gives up.
func (a *Adapter) extractURL(ctx context.Context) string {
	if url, err := a.urlFromHelper(ctx); err == nil && url != "" {
		return url
	} else if err != nil {
		a.logger.Debug("URL helper failed; falling back to window titles.", zap.Error(err))
	}
	if url := a.urlFromWindowTitles(ctx); url != "" {
		return url
	}
	a.logger.Debug("No URL recoverable from the desktop.")
	return schemas.NoURL
}

func (a *Adapter) urlFromHelper(ctx context.Context) (string, error) {
	script, err := renderURLHelper(a.cfg.Display, a.cfg.BrowserClass)
	if err != nil {
		return "", err
	}
	target := path.Join(a.cfg.HelperDir, "url-helper-"+uuid.NewString()+".sh")

	// Cleanup runs whatever happens, even if ctx is already done.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := a.runner.Run(cleanupCtx, "rm", "-f", target); err != nil {
			a.logger.Warn("Failed to remove URL helper.", zap.String("path", target), zap.Error(err))
		}
	}()

	if _, err := a.runner.Run(ctx, writeFileCmd(target, script)...); err != nil {
		return "", err
	}
	out, err := a.runner.Run(ctx, "sh", target)
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(out)
	if !absoluteURL.MatchString(url) {
		return "", nil
	}
	return url, nil
}

func (a *Adapter) urlFromWindowTitles(ctx context.Context) string {
	out, err := a.runner.Run(ctx, windowSearchCmd(a.cfg.BrowserClass)...)
	if err != nil {
		return ""
	}
	for _, id := range strings.Fields(out) {
		title, err := a.runner.Run(ctx, windowNameCmd(id)...)
		if err != nil {
			continue
		}
		if url := urlInTitle.FindString(title); url != "" {
			return url
		}
	}
	return ""
}
