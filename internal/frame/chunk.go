package frame

// DefaultChunkSize bounds every queued chunk and every coalesced write.
const DefaultChunkSize = 16 * 1024

// Split cuts data into consecutive pieces of at most bound bytes. Pieces
// alias data. An empty input yields a nil slice.
func Split(data []byte, bound int) [][]byte {
	if bound <= 0 {
		panic("frame: chunk bound must be positive")
	}
	if len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+bound-1)/bound)
	for len(data) > bound {
		chunks = append(chunks, data[:bound:bound])
		data = data[bound:]
	}
	return append(chunks, data)
}
