// Package index maintains a sorted, filtered in-memory view over one
// or more catalogs without copying article records.
package index

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ensisoft/newsflash/lib/catalog"
)

// sort key
type Column int

const (
	SortByAge Column = iota
	SortByType
	SortByBroken
	SortByDownloaded
	SortByBookmarked
	SortBySize
	SortByAuthor
	SortBySubject
)

type Order int

const (
	Ascending Order = iota
	Descending
)

// one index entry, a lightweight reference into a catalog
// the index holds copies of these triples, never articles
type Item struct {
	// identifies the catalog the article lives in
	Key uint32
	// table slot inside that catalog
	Idx uint32
}

// resolves an item back to its article on demand
type Loader func(key, idx uint32) *catalog.Article

// active filter, all criteria are anded
// zero valued bounds mean unbounded, a zero TypeMask passes all types
type Filter struct {
	// bit per catalog.FileType value
	TypeMask uint16
	// keep multipart posts with missing parts visible
	ShowBroken bool
	// keep deleted articles visible
	ShowDeleted bool
	// inclusive publish date range, seconds gmt
	MinDate uint32
	MaxDate uint32
	// inclusive byte size range
	MinSize uint32
	MaxSize uint32
}

func (f *Filter) match(a *catalog.Article) bool {
	if f.TypeMask != 0 && f.TypeMask&(1<<uint(a.Type)) == 0 {
		return false
	}
	if !f.ShowBroken && a.Is(catalog.FlagBroken) {
		return false
	}
	if !f.ShowDeleted && a.Is(catalog.FlagDeleted) {
		return false
	}
	if a.Pubdate < f.MinDate {
		return false
	}
	if f.MaxDate != 0 && a.Pubdate > f.MaxDate {
		return false
	}
	if a.Bytes < f.MinSize {
		return false
	}
	if f.MaxSize != 0 && a.Bytes > f.MaxSize {
		return false
	}
	return true
}

// a deque of items partitioned at size into a visible prefix matching
// the active filter and a filtered out suffix, both always sorted by
// the active key and direction
type Index struct {
	loader Loader
	items  []Item
	size   int

	column Column
	order  Order
	filter Filter
}

func New(loader Loader) *Index {
	return &Index{
		loader: loader,
		column: SortByAge,
		filter: Filter{ShowBroken: true, ShowDeleted: true},
	}
}

// number of currently visible items
func (x *Index) Size() int {
	return x.size
}

// total number of items, visible and filtered out
func (x *Index) NumItems() int {
	return len(x.items)
}

func (x *Index) At(i int) Item {
	return x.items[i]
}

// resolve the i'th item to its article through the loader
func (x *Index) Article(i int) *catalog.Article {
	it := x.items[i]
	return x.loader(it.Key, it.Idx)
}

func (x *Index) SortColumn() Column {
	return x.column
}

func (x *Index) SortOrder() Order {
	return x.order
}

// insert a new item keeping both halves independently sorted
// the filter predicate is evaluated once, then a binary search within
// the appropriate half alone finds the insertion point
func (x *Index) Insert(a *catalog.Article, key, idx uint32) {
	it := Item{Key: key, Idx: idx}
	if x.filter.match(a) {
		pos := x.lowerBound(x.items[:x.size], a)
		x.items = append(x.items, Item{})
		copy(x.items[pos+1:], x.items[pos:])
		x.items[pos] = it
		x.size++
	} else {
		pos := x.size + x.lowerBound(x.items[x.size:], a)
		x.items = append(x.items, Item{})
		copy(x.items[pos+1:], x.items[pos:])
		x.items[pos] = it
	}
}

func (x *Index) lowerBound(r []Item, a *catalog.Article) int {
	return sort.Search(len(r), func(i int) bool {
		b := x.loader(r[i].Key, r[i].Idx)
		return !x.less(b, a)
	})
}

// change the sort key or direction
// a direction only change is an O(n) reversal of each half, changing
// the key re-sorts the two halves independently in parallel
func (x *Index) Sort(column Column, order Order) {
	if column == x.column && order == x.order {
		return
	}
	if column == x.column {
		x.order = order
		reverse(x.items[:x.size])
		reverse(x.items[x.size:])
		return
	}
	x.column = column
	x.order = order

	var g errgroup.Group
	vis := x.items[:x.size]
	hid := x.items[x.size:]
	g.Go(func() error {
		x.sortRange(hid)
		return nil
	})
	x.sortRange(vis)
	g.Wait()
}

// apply a new filter and repartition
func (x *Index) SetFilter(f Filter) {
	x.filter = f
	x.refilter()
}

func (x *Index) CurrentFilter() Filter {
	return x.filter
}

// re-evaluate the predicate for every item
// when everything is currently visible a single stable partition
// suffices, otherwise each half is partitioned independently into a
// still/newly matching pair of sorted sub ranges which are merged back
// into exactly two sorted ranges, preserving global sort order without
// a full re-sort
func (x *Index) refilter() {
	if x.size == len(x.items) {
		vis, hid := x.partition(x.decorate(x.items))
		out := make([]Item, 0, len(x.items))
		out = appendItems(out, vis)
		out = appendItems(out, hid)
		x.items = out
		x.size = len(vis)
		return
	}

	var newVis, stillHid []elem
	var g errgroup.Group
	hid := x.decorate(x.items[x.size:])
	g.Go(func() error {
		// the non visible half runs concurrently with the visible one
		newVis, stillHid = x.partition(hid)
		return nil
	})
	stillVis, newHid := x.partition(x.decorate(x.items[:x.size]))
	g.Wait()

	visible := x.merge(stillVis, newVis)
	hidden := x.merge(newHid, stillHid)

	out := make([]Item, 0, len(x.items))
	out = appendItems(out, visible)
	out = appendItems(out, hidden)
	x.items = out
	x.size = len(visible)
}

// item plus its article loaded once for the duration of an operation
type elem struct {
	it Item
	a  *catalog.Article
}

func (x *Index) decorate(items []Item) []elem {
	es := make([]elem, len(items))
	for i, it := range items {
		es[i] = elem{it: it, a: x.loader(it.Key, it.Idx)}
	}
	return es
}

// stable partition into (matching, not matching)
func (x *Index) partition(es []elem) (yes, no []elem) {
	for _, e := range es {
		if x.filter.match(e.a) {
			yes = append(yes, e)
		} else {
			no = append(no, e)
		}
	}
	return
}

// ordered merge of two ranges sorted by the active comparator
func (x *Index) merge(p, q []elem) []elem {
	out := make([]elem, 0, len(p)+len(q))
	i, j := 0, 0
	for i < len(p) && j < len(q) {
		if x.less(q[j].a, p[i].a) {
			out = append(out, q[j])
			j++
		} else {
			out = append(out, p[i])
			i++
		}
	}
	out = append(out, p[i:]...)
	out = append(out, q[j:]...)
	return out
}

func (x *Index) sortRange(items []Item) {
	es := make([]elem, len(items))
	for i, it := range items {
		es[i] = elem{it: it, a: x.loader(it.Key, it.Idx)}
	}
	sort.SliceStable(es, func(i, j int) bool {
		return x.less(es[i].a, es[j].a)
	})
	for i := range es {
		items[i] = es[i].it
	}
}

// strict ordering by the active column and direction, ties broken by
// article number so reversal and re-sort agree exactly
func (x *Index) less(a, b *catalog.Article) bool {
	if x.order == Descending {
		a, b = b, a
	}
	switch x.column {
	case SortByAge:
		if a.Pubdate != b.Pubdate {
			return a.Pubdate < b.Pubdate
		}
	case SortByType:
		if a.Type != b.Type {
			return a.Type < b.Type
		}
	case SortByBroken:
		if p, q := a.Is(catalog.FlagBroken), b.Is(catalog.FlagBroken); p != q {
			return !p
		}
	case SortByDownloaded:
		if p, q := a.Is(catalog.FlagDownloaded), b.Is(catalog.FlagDownloaded); p != q {
			return !p
		}
	case SortByBookmarked:
		if p, q := a.Is(catalog.FlagBookmarked), b.Is(catalog.FlagBookmarked); p != q {
			return !p
		}
	case SortBySize:
		if a.Bytes != b.Bytes {
			return a.Bytes < b.Bytes
		}
	case SortByAuthor:
		if a.Author != b.Author {
			return a.Author < b.Author
		}
	case SortBySubject:
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
	}
	return a.Number < b.Number
}

func reverse(items []Item) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func appendItems(out []Item, es []elem) []Item {
	for _, e := range es {
		out = append(out, e.it)
	}
	return out
}
