package pageset

// PageSet is the ordered, deduplicated result of resolution. Order is the
// insertion order of each key's first appearance.
type PageSet struct {
	pages []AddressablePage
	index map[string]int
}

func newPageSet() *PageSet {
	return &PageSet{index: make(map[string]int)}
}

// NewPageSet builds a set from already-resolved pages; later duplicates merge
// into earlier ones.
func NewPageSet(pages ...AddressablePage) *PageSet {
	s := newPageSet()
	for _, p := range pages {
		s.upsert(p.Src, p.Properties)
	}
	return s
}

func (s *PageSet) upsert(src string, props Properties) {
	key := KeyFor(src)
	if i, ok := s.index[key]; ok {
		s.pages[i].Properties = s.pages[i].Properties.Merge(props)
		return
	}
	s.index[key] = len(s.pages)
	s.pages = append(s.pages, AddressablePage{
		Key:        key,
		Src:        src,
		Properties: Properties{}.Merge(props),
	})
}

// Pages returns the pages in resolution order. The slice must not be modified.
func (s *PageSet) Pages() []AddressablePage {
	if s == nil {
		return nil
	}
	return s.pages
}

// Keys returns the page keys in resolution order.
func (s *PageSet) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.pages))
	for i, p := range s.pages {
		keys[i] = p.Key
	}
	return keys
}

// Has reports whether key is addressable.
func (s *PageSet) Has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[key]
	return ok
}

// Get returns the page for key.
func (s *PageSet) Get(key string) (AddressablePage, bool) {
	if s == nil {
		return AddressablePage{}, false
	}
	i, ok := s.index[key]
	if !ok {
		return AddressablePage{}, false
	}
	return s.pages[i], true
}

// Len returns the number of addressable pages.
func (s *PageSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.pages)
}

// Diff describes how a re-resolved set differs from a previous one.
type Diff struct {
	Added   []string
	Removed []AddressablePage
	// Changed lists keys present in both sets whose source or properties differ.
	Changed []string
}

// Structural reports whether the address set itself changed.
func (d Diff) Structural() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0
}

// Compare computes the difference from old to s.
func (s *PageSet) Compare(old *PageSet) Diff {
	var d Diff
	for _, p := range s.Pages() {
		prev, ok := old.Get(p.Key)
		switch {
		case !ok:
			d.Added = append(d.Added, p.Key)
		case prev.Src != p.Src || !prev.Properties.Equal(p.Properties):
			d.Changed = append(d.Changed, p.Key)
		}
	}
	for _, p := range old.Pages() {
		if !s.Has(p.Key) {
			d.Removed = append(d.Removed, p)
		}
	}
	return d
}
