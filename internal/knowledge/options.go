package knowledge

// DefaultTopK is the number of results Search returns unless WithTopK
// overrides it.
const DefaultTopK = 5

type searchOptions struct {
	topK   int
	filter map[string]string
}

// SearchOption customizes a Search call.
type SearchOption func(*searchOptions)

// WithTopK sets the maximum number of results. Values below 1 are ignored.
func WithTopK(k int) SearchOption {
	return func(o *searchOptions) {
		if k >= 1 {
			o.topK = k
		}
	}
}

// WithFilter restricts results to chunks whose metadata contains every
// given pair.
func WithFilter(filter map[string]string) SearchOption {
	return func(o *searchOptions) {
		o.filter = filter
	}
}

func newSearchOptions(opts []SearchOption) searchOptions {
	o := searchOptions{topK: DefaultTopK}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
