package storage

// Chunk splits rows into consecutive batches of at most size rows. A
// non-positive size yields a single batch.
func Chunk(rows [][]any, size int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(rows) {
		return [][][]any{rows}
	}
	out := make([][][]any, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// RowsPerStatement is how many rows fit into one statement given a bind
// parameter limit.
func RowsPerStatement(maxParams, columns int) int {
	if columns <= 0 {
		return 1
	}
	return max(1, maxParams/columns)
}
