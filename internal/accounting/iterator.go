package accounting

// Item is anything that can appear in the accounting event stream: decoded
// chain events as well as exchange side events.
type Item interface {
	TimestampMS() int64
}

// Peekable iterates a slice with one element of lookahead.
type Peekable struct {
	items []Item
	pos   int
}

func NewPeekable(items []Item) *Peekable {
	return &Peekable{items: items}
}

func (p *Peekable) Peek() (Item, bool) {
	if p.pos >= len(p.items) {
		return nil, false
	}
	return p.items[p.pos], true
}

func (p *Peekable) Next() (Item, bool) {
	item, ok := p.Peek()
	if ok {
		p.pos++
	}
	return item, ok
}

// Remaining is the number of unread items.
func (p *Peekable) Remaining() int {
	return len(p.items) - p.pos
}
