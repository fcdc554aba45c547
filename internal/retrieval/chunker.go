package retrieval

import "strings"

const (
	defaultChunkWords   = 300
	defaultOverlapWords = 50
)

// ChunkText splits text into word-window chunks with overlap so that
// sentences cut at a boundary still appear whole in a neighboring chunk.
// chunkWords <= 0 or overlapWords < 0 select the defaults; overlap is
// clamped below the chunk size.
func ChunkText(text string, chunkWords, overlapWords int) []string {
	if chunkWords <= 0 {
		chunkWords = defaultChunkWords
	}
	if overlapWords < 0 {
		overlapWords = defaultOverlapWords
	}
	if overlapWords >= chunkWords {
		overlapWords = chunkWords / 2
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= chunkWords {
		return []string{strings.Join(words, " ")}
	}

	step := chunkWords - overlapWords
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := min(start+chunkWords, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
