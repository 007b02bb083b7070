package links

// Keyed is an insertion-ordered map from a download key to its file links.
type Keyed struct {
	keys  []string
	links map[string][]Link
}

func NewKeyed() *Keyed {
	return &Keyed{links: map[string][]Link{}}
}

func (k *Keyed) Add(key string, l ...Link) {
	if _, ok := k.links[key]; !ok {
		k.keys = append(k.keys, key)
		k.links[key] = nil
	}
	k.links[key] = append(k.links[key], l...)
}

func (k *Keyed) Get(key string) ([]Link, bool) {
	l, ok := k.links[key]
	return l, ok
}

func (k *Keyed) Keys() []string {
	return append([]string(nil), k.keys...)
}

func (k *Keyed) Len() int { return len(k.keys) }

// Subset returns the keys at positions start through end inclusive. A
// negative end means through the last key.
func (k *Keyed) Subset(start, end int) *Keyed {
	res := NewKeyed()
	n := len(k.keys)
	if end < 0 || end >= n {
		end = n - 1
	}
	if start < 0 {
		start = 0
	}
	for i := start; i <= end; i++ {
		key := k.keys[i]
		res.Add(key, k.links[key]...)
	}
	return res
}

// Rows flattens the map into key, text, url records.
func (k *Keyed) Rows() [][]string {
	var rows [][]string
	for _, key := range k.keys {
		for _, l := range k.links[key] {
			rows = append(rows, []string{key, l.Text, l.URL})
		}
	}
	return rows
}

// KeyedFromRows groups key, text, url records by key keeping first-seen order.
func KeyedFromRows(rows [][]string) *Keyed {
	k := NewKeyed()
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		k.Add(r[0], Link{Text: r[1], URL: r[2]})
	}
	return k
}

// UniqueColumn returns the distinct values of column col in first-seen order.
func UniqueColumn(rows [][]string, col int) []string {
	seen := map[string]struct{}{}
	var res []string
	for _, r := range rows {
		if len(r) <= col {
			continue
		}
		if _, ok := seen[r[col]]; ok {
			continue
		}
		seen[r[col]] = struct{}{}
		res = append(res, r[col])
	}
	return res
}
