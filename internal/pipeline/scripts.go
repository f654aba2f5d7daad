package pipeline

// Scripts evaluated in the page. Each expression returns a JSON-serializable
// value; none may evaluate to undefined.
const (
	// ScriptScrollHeight returns document.body.scrollHeight.
	ScriptScrollHeight = `document.body ? document.body.scrollHeight : 0`

	// ScriptScrollToBottom scrolls to the end of the document.
	ScriptScrollToBottom = `(window.scrollTo(0, document.body ? document.body.scrollHeight : 0), true)`

	// ScriptScrollToTop scrolls back to the top.
	ScriptScrollToTop = `(window.scrollTo(0, 0), true)`

	// ScriptTitle returns the title and meta description.
	ScriptTitle = `(() => {
  const d = document.querySelector('meta[name="description"]');
  return { title: document.title || "", description: (d && d.getAttribute("content")) || "" };
})()`

	// ScriptMetadata returns every meta tag with a name or property.
	ScriptMetadata = `Array.from(document.querySelectorAll("meta"))
  .map(el => ({
    name: el.getAttribute("name") || el.getAttribute("property") || "",
    content: el.getAttribute("content") || ""
  }))
  .filter(m => m.name !== "")`

	// ScriptStructuredData returns raw JSON-LD blocks and microdata items.
	ScriptStructuredData = `(() => ({
  jsonld: Array.from(document.querySelectorAll('script[type="application/ld+json"]'))
    .map(el => el.textContent || ""),
  microdata: Array.from(document.querySelectorAll("[itemtype]")).map(el => ({
    type: el.getAttribute("itemtype") || "",
    id: el.getAttribute("itemid") || "",
    properties: Array.from(el.querySelectorAll("[itemprop]")).map(p => ({
      name: p.getAttribute("itemprop") || "",
      content: p.getAttribute("content") || (p.textContent || "").trim()
    }))
  }))
}))()`

	// ScriptContentStructure returns headings, lists, images, forms, tables,
	// iframes and shadow hosts. Shadow hosts are found with an explicit stack
	// so deep documents cannot exhaust the call stack.
	ScriptContentStructure = `(() => {
  const cls = el => Array.from(el.classList || []).join(" ");
  const text = el => (el.textContent || "").trim();
  const headings = [];
  for (let level = 1; level <= 6; level++) {
    document.querySelectorAll("h" + level).forEach(el => {
      headings.push({ level, text: text(el), id: el.id, classes: cls(el) });
    });
  }
  const shadow = [];
  const stack = document.body ? [document.body] : [];
  while (stack.length > 0) {
    const el = stack.pop();
    if (el.shadowRoot) {
      shadow.push({
        tagName: el.tagName,
        id: el.id,
        classes: cls(el),
        shadowContent: Array.from(el.shadowRoot.querySelectorAll("*")).map(c => ({
          tagName: c.tagName, id: c.id, classes: cls(c), text: text(c)
        }))
      });
    }
    for (let i = el.children.length - 1; i >= 0; i--) stack.push(el.children[i]);
  }
  return {
    headings,
    lists: Array.from(document.querySelectorAll("ul, ol")).map(el => ({
      type: el.tagName.toLowerCase(),
      items: Array.from(el.querySelectorAll("li")).map(text),
      id: el.id, classes: cls(el)
    })),
    images: Array.from(document.querySelectorAll("img")).map(el => ({
      src: el.src, alt: el.alt, width: el.width, height: el.height, id: el.id, classes: cls(el)
    })),
    forms: Array.from(document.querySelectorAll("form")).map(el => ({
      action: el.action, method: el.method, id: el.id, classes: cls(el),
      inputs: Array.from(el.querySelectorAll("input, select, textarea")).map(i => ({
        type: i.type || i.tagName.toLowerCase(), name: i.name || "", id: i.id,
        placeholder: i.placeholder || "", required: !!i.required, value: i.value || "",
        disabled: !!i.disabled, checked: !!i.checked
      }))
    })),
    tables: Array.from(document.querySelectorAll("table")).map(el => ({
      id: el.id, classes: cls(el),
      headers: Array.from(el.querySelectorAll("th")).map(text),
      rows: Array.from(el.querySelectorAll("tr")).map(tr => Array.from(tr.querySelectorAll("td")).map(text))
    })),
    iframes: Array.from(document.querySelectorAll("iframe")).map(el => ({
      src: el.src, id: el.id, name: el.name, width: String(el.width || ""),
      height: String(el.height || ""), classes: cls(el)
    })),
    shadowDOM: shadow
  };
})()`

	// ScriptLinks returns the document location and its anchors.
	ScriptLinks = `(() => ({
  location: window.location.href,
  links: Array.from(document.querySelectorAll("a[href]")).map(el => ({
    text: (el.textContent || "").trim(), href: el.href, title: el.title, target: el.target,
    rel: el.rel, id: el.id, classes: Array.from(el.classList).join(" ")
  }))
}))()`

	// ScriptComputedStyles returns the bounding box and selected computed
	// properties of every element with an id or class, keyed by selector.
	ScriptComputedStyles = `(() => {
  const props = ["color", "backgroundColor", "fontSize", "fontFamily", "fontWeight", "textAlign",
    "display", "position", "margin", "padding", "border", "borderRadius"];
  const out = {};
  document.querySelectorAll("*").forEach(el => {
    let selector = "";
    if (el.id) selector = "#" + el.id;
    else if (el.classList && el.classList.length > 0) selector = "." + Array.from(el.classList).join(".");
    if (!selector) return;
    const cs = window.getComputedStyle(el);
    const r = el.getBoundingClientRect();
    const styles = {};
    props.forEach(p => { styles[p] = cs[p] || ""; });
    out[selector] = { position: { top: r.top, left: r.left, width: r.width, height: r.height }, styles };
  });
  return out;
})()`

	// ScriptStorage returns local and session storage and document.cookie.
	ScriptStorage = `(() => {
  const dump = s => {
    const out = {};
    for (let i = 0; i < s.length; i++) { const k = s.key(i); out[k] = s.getItem(k); }
    return out;
  };
  return { localStorage: dump(window.localStorage), sessionStorage: dump(window.sessionStorage), cookies: document.cookie };
})()`

	// ScriptTextNodes returns every non-empty trimmed text node under body.
	ScriptTextNodes = `(() => {
  const out = [];
  if (!document.body) return out;
  const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
  let node;
  while ((node = walker.nextNode())) {
    const t = (node.textContent || "").trim();
    if (t) out.push(t);
  }
  return out;
})()`
)
