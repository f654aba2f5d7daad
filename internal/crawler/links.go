package crawler

import "github.com/nao1215/pagesnap/internal/model"

// InternalLinks returns the hrefs of internal links in first-seen order,
// deduplicated by exact string and capped at limit. A limit of zero or less
// means no cap.
func InternalLinks(links []model.Link, limit int) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, min(len(links), max(limit, 0)))
	for _, l := range links {
		if l.IsExternal || l.Href == "" {
			continue
		}
		if _, dup := seen[l.Href]; dup {
			continue
		}
		seen[l.Href] = struct{}{}
		out = append(out, l.Href)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
