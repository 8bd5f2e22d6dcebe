package minter

import "unicode/utf8"

// MaxMetadataStringSize is the ledger limit for a single metadata text value.
const MaxMetadataStringSize = 64

// ChunkString splits s into pieces of at most size bytes without cutting a
// utf-8 sequence in half.
func ChunkString(s string, size int) (chunks []string) {
	if size <= 0 || len(s) <= size {
		return []string{s}
	}

	for len(s) > 0 {
		end := size
		if end >= len(s) {
			chunks = append(chunks, s)
			break
		}
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		if end == 0 {
			end = size
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}

	return
}
