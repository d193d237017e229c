package modelbundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

// Archive blob names inside the zip container (§4.5: "two opaque blobs").
const (
	hmmBlobName    = "hmm.bin"
	policyBlobName = "policy.bin"
)

// EngineFactory builds the pluggable InferenceEngine from the two opaque
// blobs extracted from an archive. Production wires this to the embedded
// inference runtime; tests wire a deterministic stub.
type EngineFactory func(hmmBlob, policyBlob []byte) (InferenceEngine, error)

// Loader reads model archives from a models directory, one zip file per
// (symbol, timeframe) as named by the caller (§4.5, §6).
type Loader struct {
	newEngine EngineFactory
}

// NewLoader builds a Loader bound to the given inference-engine factory.
func NewLoader(factory EngineFactory) *Loader {
	return &Loader{newEngine: factory}
}

// Load opens the archive at path, validates its metadata against the format
// version allow-list and required-field list, and returns a ready Bundle.
// It fails loudly (wrapping types.ErrModelLoadFailed) on any corruption,
// unknown format version, or missing field — the loader never silently
// falls back to zero-valued metadata (§4.5).
func (l *Loader) Load(path, symbol string) (*Bundle, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("modelbundle: open %s: %w", path, types.ErrModelLoadFailed)
	}
	defer r.Close()

	if r.Comment == "" {
		return nil, fmt.Errorf("modelbundle: %s has no metadata comment: %w", path, types.ErrModelLoadFailed)
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(r.Comment), &meta); err != nil {
		return nil, fmt.Errorf("modelbundle: %s metadata is not valid JSON: %w", path, types.ErrModelLoadFailed)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("modelbundle: %s: %w", path, err)
	}

	hmmBlob, err := readZipEntry(&r.Reader, hmmBlobName)
	if err != nil {
		return nil, fmt.Errorf("modelbundle: %s: %w", path, err)
	}
	policyBlob, err := readZipEntry(&r.Reader, policyBlobName)
	if err != nil {
		return nil, fmt.Errorf("modelbundle: %s: %w", path, err)
	}

	engine, err := l.newEngine(hmmBlob, policyBlob)
	if err != nil {
		return nil, fmt.Errorf("modelbundle: %s: inference engine init: %w", path, err)
	}

	return &Bundle{
		Symbol:   symbol,
		Metadata: meta,
		Costs:    toCostParams(meta.Costs),
		Engine:   engine,
	}, nil
}

func readZipEntry(r *zip.Reader, name string) ([]byte, error) {
	f, err := r.Open(name)
	if err != nil {
		return nil, fmt.Errorf("missing archive entry %q: %w", name, types.ErrModelLoadFailed)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading archive entry %q: %w", name, types.ErrModelLoadFailed)
	}
	return data, nil
}

func toCostParams(c CostParams) types.CostParams {
	out := types.CostParams{
		Point:            c.Point,
		PipValue:         c.PipValue,
		SpreadPoints:     c.SpreadPoints,
		SlippagePoints:   c.SlippagePoints,
		CommissionPerLot: c.CommissionPerLot,
		Digits:           c.Digits,
		InitialBalance:   c.InitialBalance,
	}
	for k, v := range c.LotSizes {
		switch k {
		case "1":
			out.LotSizes[1] = v
		case "2":
			out.LotSizes[2] = v
		case "3":
			out.LotSizes[3] = v
		}
	}
	return out
}
