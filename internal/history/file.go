package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agisilaos/farewatch/internal/model"
)

// FileBackend stores one JSON observation per line.
type FileBackend struct {
	Path string
}

func (b FileBackend) Load(_ context.Context) ([]model.PriceObservation, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.PriceObservation{}, nil
		}
		return nil, err
	}
	defer f.Close()

	out := []model.PriceObservation{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var obs model.PriceObservation
		if err := json.Unmarshal(raw, &obs); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", b.Path, line, err)
		}
		out = append(out, obs)
	}
	return out, sc.Err()
}

func (b FileBackend) Append(_ context.Context, obs model.PriceObservation) error {
	if err := os.MkdirAll(filepath.Dir(b.Path), 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	f, err := os.OpenFile(b.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (b FileBackend) Close() error { return nil }
