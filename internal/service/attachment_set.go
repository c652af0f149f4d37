package service

import "github.com/jansampark/event-desk-api/internal/models"

// pruneURLs returns the list with every requested URL removed, preserving the
// order of the survivors. Requesting a URL that is not in the list is a no-op,
// which makes removal lists idempotent.
func pruneURLs(list models.StringList, removals []string) models.StringList {
	if len(removals) == 0 {
		return list
	}
	drop := make(map[string]struct{}, len(removals))
	for _, url := range removals {
		if url != "" {
			drop[url] = struct{}{}
		}
	}
	out := make(models.StringList, 0, len(list))
	for _, url := range list {
		if _, ok := drop[url]; ok {
			continue
		}
		out = append(out, url)
	}
	return out
}

// nonEmpty filters blank entries out of a removal list. File deletion is
// attempted for every remaining entry whether or not the event still
// references it, mirroring the tolerant cleanup contract.
func nonEmpty(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if url != "" {
			out = append(out, url)
		}
	}
	return out
}
