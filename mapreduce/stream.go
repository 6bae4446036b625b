package mapreduce

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

const maxLineSize = 1 << 20

// Lines returns a closed, buffered channel holding one input record per
// line.
func Lines(lines ...string) <-chan KeyVal {
	ch := make(chan KeyVal, len(lines))
	for _, line := range lines {
		ch <- KeyVal{Val: line}
	}
	close(ch)

	return ch
}

// ReadLines sends every line of r to out as an input record and closes
// out when done.
func ReadLines(ctx context.Context, r io.Reader, out chan<- KeyVal) error {
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- KeyVal{Val: scanner.Text()}:
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read lines: %w", err)
	}

	return nil
}

// WriteRecords writes one "key<TAB>value" line per record.
func WriteRecords(w io.Writer, recs []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range recs {
		if _, err := fmt.Fprintln(bw, rec); err != nil {
			return err
		}
	}

	return bw.Flush()
}
