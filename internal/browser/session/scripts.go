// internal/browser/session/scripts.go
package session

// annotateScript marks every element with the layout facts markup alone
// cannot carry. Stale marks from a previous snapshot are removed first.
const annotateScript = `(function() {
  const ATTRS = ['data-scalpel-hidden', 'data-scalpel-offscreen', 'data-scalpel-rect',
                 'data-scalpel-value', 'data-scalpel-checked'];
  const vw = window.innerWidth, vh = window.innerHeight;
  const all = document.body ? document.body.querySelectorAll('*') : [];
  let count = 0;
  for (const el of all) {
    for (const a of ATTRS) el.removeAttribute(a);
    const st = window.getComputedStyle(el);
    if (st.display === 'none' || st.visibility === 'hidden' || st.visibility === 'collapse') {
      el.setAttribute('data-scalpel-hidden', '');
      continue;
    }
    const r = el.getBoundingClientRect();
    el.setAttribute('data-scalpel-rect',
      [r.left, r.top, r.width, r.height].map(v => Math.round(v)).join(','));
    if (r.bottom < 0 || r.right < 0 || r.top > vh || r.left > vw) {
      el.setAttribute('data-scalpel-offscreen', '');
    }
    const tag = el.tagName.toLowerCase();
    if (tag === 'input' || tag === 'textarea' || tag === 'select') {
      if (el.value !== undefined && el.value !== '') el.setAttribute('data-scalpel-value', String(el.value));
      if (el.type === 'checkbox' || el.type === 'radio') {
        el.setAttribute('data-scalpel-checked', el.checked ? 'true' : 'false');
      }
    }
    count++;
  }
  return count;
})()`

// inspectScript resolves an XPath, prepares the node for a pointer action and
// reports whether it can receive one. %s is the JSON encoded XPath.
const inspectScript = `(function(xp) {
  const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!el) return {status: 'missing', tag: ''};
  const tag = el.tagName.toLowerCase();
  el.removeAttribute('target');
  if (el.scrollIntoViewIfNeeded) { el.scrollIntoViewIfNeeded(true); } else { el.scrollIntoView({block: 'center'}); }
  const st = window.getComputedStyle(el);
  if (st.display === 'none' || st.visibility === 'hidden') return {status: 'hidden', tag: tag};
  const r = el.getBoundingClientRect();
  if (r.width === 0 || r.height === 0) return {status: 'zero', tag: tag};
  if (tag !== 'select' && tag !== 'option') {
    const hit = document.elementFromPoint(r.left + r.width / 2, r.top + r.height / 2);
    if (hit && hit !== el && !el.contains(hit) && !hit.contains(el)) {
      return {status: 'obscured', tag: tag, by: hit.tagName.toLowerCase()};
    }
  }
  return {status: 'ok', tag: tag};
})(%s)`

// selectScript picks the option of a select whose label or value matches,
// case-insensitively. %s are the JSON encoded XPath and wanted text.
const selectScript = `(function(xp, want) {
  const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (!el || !el.options) return false;
  const w = want.trim().toLowerCase();
  for (const opt of el.options) {
    if (opt.disabled) continue;
    if (opt.text.trim().toLowerCase() === w || opt.value.toLowerCase() === w) {
      el.value = opt.value;
      el.dispatchEvent(new Event('input', {bubbles: true}));
      el.dispatchEvent(new Event('change', {bubbles: true}));
      return true;
    }
  }
  return false;
})(%s, %s)`

// clearScript empties a text field before typing. %s is the JSON encoded XPath.
const clearScript = `(function(xp) {
  const el = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  if (el && 'value' in el) { el.value = ''; el.dispatchEvent(new Event('input', {bubbles: true})); }
  return true;
})(%s)`

const scrollMetricsScript = `({
  scroll_x: window.scrollX,
  scroll_y: window.scrollY,
  scroll_width: document.body ? document.body.scrollWidth : 0,
  scroll_height: document.body ? document.body.scrollHeight : 0,
  inner_width: window.innerWidth,
  inner_height: window.innerHeight
})`
