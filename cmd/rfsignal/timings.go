package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseTimings reads pulse widths in microseconds separated by whitespace or
// commas. Everything after '#' on a line is a comment.
func parseTimings(r io.Reader) ([]uint32, error) {
	var timings []uint32
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, errors.Errorf("line %d: invalid timing %q", line, f)
			}
			timings = append(timings, uint32(v))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read timings")
	}
	return timings, nil
}

func readTimings(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open timing file")
	}
	defer f.Close()

	timings, err := parseTimings(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if len(timings) == 0 {
		return nil, errors.Errorf("%s: no timings", path)
	}
	return timings, nil
}

// formatTimings writes eight timings per line, high/low pairs adjacent
func formatTimings(w io.Writer, timings []uint32, header string) error {
	bw := bufio.NewWriter(w)
	if header != "" {
		fmt.Fprintf(bw, "# %s\n", header)
	}
	for i, t := range timings {
		sep := " "
		if i%8 == 7 || i == len(timings)-1 {
			sep = "\n"
		}
		fmt.Fprintf(bw, "%d%s", t, sep)
	}
	return bw.Flush()
}

func writeTimings(path string, timings []uint32, header string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create timing file")
	}
	if err := formatTimings(f, timings, header); err != nil {
		f.Close()
		return errors.Wrap(err, "failed to write timings")
	}
	return f.Close()
}
