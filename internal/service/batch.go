package service

// Span is a half-open range [Start, End) of a slice being written.
type Span struct {
	Start int
	End   int
}

// Batches splits n items into consecutive spans of at most size items.
func Batches(n, size int) []Span {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = n
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, n)})
	}
	return spans
}
