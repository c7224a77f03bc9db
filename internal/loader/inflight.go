package loader

// inflightRegistry holds URLs with exactly one outstanding fetch.
type inflightRegistry map[string]struct{}

// add marks url in flight; it reports false if a fetch is already outstanding.
func (r inflightRegistry) add(url string) bool {
	if _, ok := r[url]; ok {
		return false
	}
	r[url] = struct{}{}
	return true
}

func (r inflightRegistry) has(url string) bool {
	_, ok := r[url]
	return ok
}

func (r inflightRegistry) remove(url string) { delete(r, url) }
