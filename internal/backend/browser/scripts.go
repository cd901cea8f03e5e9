// internal/backend/browser/scripts.go
package browser

import "fmt"

// Scripts evaluated in the page. Each is an expression whose value chromedp
// decodes into the matching Go struct.

// elementAtScript describes the element under a viewport point.
const elementAtScript = `(() => {
  const el = document.elementFromPoint(%d, %d);
  if (!el) return { found: false };
  const r = el.getBoundingClientRect();
  const tag = el.tagName.toLowerCase();
  const editable = tag === 'input' || tag === 'textarea' || el.isContentEditable === true;
  const focusable = editable || tag === 'select' || tag === 'button' ||
    (tag === 'a' && el.hasAttribute('href')) || el.tabIndex >= 0;
  const inViewport = r.top >= 0 && r.left >= 0 &&
    r.bottom <= window.innerHeight && r.right <= window.innerWidth;
  return { found: true, tag, editable, focusable, inViewport,
    x: r.left, y: r.top, width: r.width, height: r.height };
})()`

// activeElementScript describes document.activeElement, or reports nothing
// focused when focus sits on the body.
const activeElementScript = `(() => {
  const el = document.activeElement;
  if (!el || el === document.body || el === document.documentElement) return { found: false };
  const r = el.getBoundingClientRect();
  const tag = el.tagName.toLowerCase();
  const editable = tag === 'input' || tag === 'textarea' || el.isContentEditable === true;
  return { found: true, tag, editable, focusable: true, inViewport: true,
    x: r.left, y: r.top, width: r.width, height: r.height };
})()`

const scrollIntoViewScript = `(() => {
  const el = document.elementFromPoint(%d, %d);
  if (!el) return false;
  el.scrollIntoView({ behavior: 'smooth', block: 'center', inline: 'center' });
  return true;
})()`

const focusScript = `(() => {
  const el = document.elementFromPoint(%d, %d);
  if (!el || typeof el.focus !== 'function') return false;
  el.focus();
  return document.activeElement === el;
})()`

// contentSizeScript returns [document height, node count]; together they
// change whenever layout or content does.
const contentSizeScript = `(() => [
  Math.max(document.documentElement ? document.documentElement.scrollHeight : 0,
           document.body ? document.body.scrollHeight : 0),
  document.getElementsByTagName('*').length
])()`

// loadingScript combines visible indicator selectors, numeric progress from
// <progress> or role=progressbar, and animated loading-ish class names.
const loadingScript = `((selectors) => {
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) return false;
    const s = window.getComputedStyle(el);
    return s.display !== 'none' && s.visibility !== 'hidden' && parseFloat(s.opacity || '1') > 0;
  };

  let progress = null;
  for (const el of document.querySelectorAll('progress, [role="progressbar"]')) {
    if (!visible(el)) continue;
    if (el.tagName === 'PROGRESS') {
      if (el.hasAttribute('value') && el.max > 0) { progress = (el.value / el.max) * 100; break; }
      continue;
    }
    const now = parseFloat(el.getAttribute('aria-valuenow'));
    const min = parseFloat(el.getAttribute('aria-valuemin') || '0');
    const max = parseFloat(el.getAttribute('aria-valuemax') || '100');
    if (!isNaN(now) && max > min) { progress = ((now - min) / (max - min)) * 100; break; }
  }

  let loading = progress !== null && progress < 100;
  for (const sel of selectors) {
    if (loading) break;
    let nodes = [];
    try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of nodes) { if (visible(el)) { loading = true; break; } }
  }

  if (!loading) {
    const hinted = document.querySelectorAll(
      '[class*="loading"], [class*="loader"], [class*="spin"], [class*="progress"]');
    for (const el of hinted) {
      if (!visible(el)) continue;
      const s = window.getComputedStyle(el);
      if (s.animationName && s.animationName !== 'none') { loading = true; break; }
    }
  }
  return { isLoading: loading, progress: progress };
})(%s)`

// submitFormScript submits the first form matching selectors (or the first
// form on the page). It prefers the form's own submit control so page
// handlers run, then native submission, then the parent form of a matched
// container. It returns how the form was submitted, or "" if nothing matched.
const submitFormScript = `((selectors) => {
  let target = null;
  for (const sel of selectors) {
    try { target = document.querySelector(sel); } catch (e) { target = null; }
    if (target) break;
  }
  if (!target) target = document.querySelector('form');
  if (!target) return '';

  const submitControl = (root) => root.querySelector(
    'button[type="submit"], input[type="submit"], button:not([type])');
  const submit = (form) => {
    if (typeof form.requestSubmit === 'function') form.requestSubmit(); else form.submit();
  };

  if (target.tagName === 'FORM') {
    const button = submitControl(target);
    if (button) { button.click(); return 'button'; }
    submit(target);
    return 'native';
  }
  const button = submitControl(target);
  if (button) { button.click(); return 'button'; }
  const parent = target.closest('form') || target.querySelector('form');
  if (parent) { submit(parent); return 'parent'; }
  return '';
})(%s)`

func pointScript(script string, x, y int) string {
	return fmt.Sprintf(script, x, y)
}
