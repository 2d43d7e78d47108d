package cooldown

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config names the importer's input and output.
type Config struct {
	InputPath  string
	OutputPath string
	Color      string
	Lenient    bool
}

// DefaultConfig returns the conventional file names.
func DefaultConfig() Config {
	return Config{
		InputPath:  "input.csv",
		OutputPath: "cooldowns.yaml",
		Color:      DefaultColor,
	}
}

// Encode writes records as a YAML sequence of block mappings.
func Encode(w io.Writer, records []Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode cooldowns: %w", err)
	}
	return enc.Close()
}

// Load parses a document produced by Encode.
func Load(r io.Reader) ([]Record, error) {
	var records []Record
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("decode cooldowns: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Import reads cfg.InputPath, converts every row and writes cfg.OutputPath.
// Nothing is written unless the whole input converts (or, in lenient mode,
// unless reading completes). The output replaces the destination atomically.
func Import(ctx context.Context, cfg Config) (*Report, error) {
	in, err := os.Open(cfg.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	report, err := Parse(ctx, in, ParseOptions{Color: cfg.Color, Lenient: cfg.Lenient})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfg.InputPath, err)
	}
	if err := writeAtomic(cfg.OutputPath, report.Records); err != nil {
		return nil, err
	}
	return report, nil
}

func writeAtomic(path string, records []Record) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, records); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace output: %w", err)
	}
	return nil
}
