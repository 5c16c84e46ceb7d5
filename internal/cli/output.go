package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// writeMaybeJSON prints v as indented JSON, or calls plain for human output.
func writeMaybeJSON(w io.Writer, g *globalFlags, v any, plain func(io.Writer)) error {
	if g.JSON || plain == nil {
		return writeJSON(w, v)
	}
	plain(w)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// writeJSONLine prints v compactly, one object per line.
func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writePlainKV(w io.Writer, pairs ...string) {
	if len(pairs)%2 != 0 {
		fmt.Fprintln(w, strings.Join(pairs, "\t"))
		return
	}
	out := make([]string, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, fmt.Sprintf("%s=%s", pairs[i], pairs[i+1]))
	}
	fmt.Fprintln(w, strings.Join(out, "\t"))
}

func writePlainTableRow(w io.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func firstOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
