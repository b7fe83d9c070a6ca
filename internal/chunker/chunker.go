package chunker

import "github.com/oukeidos/subflow/internal/codec"

// Chunk is one batch of entries. Start is the offset of the first entry in
// the input slice.
type Chunk struct {
	Index   int
	Start   int
	Entries []codec.Entry
}

// End returns the input offset just past the chunk.
func (c Chunk) End() int {
	return c.Start + len(c.Entries)
}

// SplitIntoChunks partitions entries into consecutive chunks of at most
// chunkSize entries. A chunkSize below 1 is treated as 1.
func SplitIntoChunks(entries []codec.Entry, chunkSize int) []Chunk {
	if chunkSize < 1 {
		chunkSize = 1
	}
	n := len(entries)
	chunks := make([]Chunk, 0, (n+chunkSize-1)/chunkSize)

	for i := 0; i < n; i += chunkSize {
		end := i + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Start:   i,
			Entries: entries[i:end],
		})
	}

	return chunks
}

// Groups splits chunks into consecutive dispatch groups of at most size chunks.
func Groups(chunks []Chunk, size int) [][]Chunk {
	if size < 1 {
		size = 1
	}
	var groups [][]Chunk
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		groups = append(groups, chunks[i:end])
	}
	return groups
}
