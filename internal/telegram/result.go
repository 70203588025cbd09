package telegram

// Result is what ParseTelegram returns: a terminal Status plus a
// non-owning view over the parser-produced region of the caller's buffer.
//
// data is never copied from the input buffer. It remains valid only for as
// long as the buffer that produced it is alive and unmodified - the same
// borrow the parser itself held for the duration of the call, downgraded
// from exclusive to shared once ParseTelegram returns.
type Result struct {
	Status Status
	data   []byte
}

// Len returns the length of the parsed region in bytes. It is meaningful
// even when Status is not StatusOK, for diagnostics, but the region's
// contents beyond the point parsing stopped are explicitly undefined.
func (r Result) Len() int {
	return len(r.data)
}

// Objects returns a forward iterator over the objects in the result. If
// Status is not StatusOK the iterator is immediately exhausted: per the
// core's failure semantics, a non-OK result must not be iterated for its
// (possibly partial, possibly garbage) content.
func (r Result) Objects() *ObjectIterator {
	return newObjectIterator(r)
}
