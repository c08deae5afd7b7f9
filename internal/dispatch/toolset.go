package dispatch

import (
	"fmt"
	"path/filepath"

	"github.com/geodex-labs/geodex/pkg/models"
)

// Stage is one tool invocation of a build.
type Stage struct {
	Name   string
	Binary string
	Args   []string
}

// Toolset maps index types to the ingestion tools that build them and
// computes the argv for each stage.
type Toolset struct {
	ToolsDir  string // directory holding the tool binaries
	SearchURL string // handed to ingestion tools as --connection-string
}

// Supports reports whether build stages exist for the index type.
func (t Toolset) Supports(indexType models.IndexType) bool {
	switch indexType {
	case models.IndexTypeOSM, models.IndexTypeCosmogony, models.IndexTypeBANO, models.IndexTypeOpenAddresses:
		return true
	}
	return false
}

// StagesFor returns the tool stages building idx, in execution order.
// input is the local path of the materialized data source and workDir a
// per-build scratch directory for intermediate artifacts.
func (t Toolset) StagesFor(idx models.Index, workDir, input string) ([]Stage, error) {
	switch idx.IndexType {
	case models.IndexTypeOSM:
		return []Stage{t.ingest("osm-ingestion-tool", idx, input)}, nil
	case models.IndexTypeBANO:
		return []Stage{t.ingest("bano-ingestion-tool", idx, input)}, nil
	case models.IndexTypeOpenAddresses:
		return []Stage{t.ingest("openaddresses-ingestion-tool", idx, input)}, nil
	case models.IndexTypeCosmogony:
		// Cosmogony builds in two phases: the generator writes an
		// intermediate JSON file, then the ingestion tool loads it.
		out := filepath.Join(workDir, fmt.Sprintf("cosmogony-%s.json", idx.Region))
		gen := Stage{
			Name:   "cosmogony",
			Binary: filepath.Join(t.ToolsDir, "cosmogony"),
			Args: []string{
				"--input", input,
				"--region", idx.Region,
				"--output", out,
			},
		}
		return []Stage{gen, t.ingest("cosmogony-ingestion-tool", idx, out)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, idx.IndexType)
}

func (t Toolset) ingest(tool string, idx models.Index, input string) Stage {
	return Stage{
		Name:   tool,
		Binary: filepath.Join(t.ToolsDir, tool),
		Args: []string{
			"--input", input,
			"--region", idx.Region,
			"--connection-string", t.SearchURL,
		},
	}
}
