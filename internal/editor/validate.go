package editor

import "fmt"

// ValidationResult is the outcome of a pipeline check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

const (
	msgEmpty         = "Pipeline is empty. Add at least one block."
	msgNoRetrieval   = "Pipeline needs at least one vector store block"
	msgNoGeneration  = "Pipeline needs at least one AI model block"
	msgMissingInputf = "%s block is missing a connection to its %s input"
)

// validate applies the pipeline rules. Debug mode only requires a
// non-empty graph; otherwise a retrieval provider, a generation endpoint
// and a connection on every declared input are required.
func validate(blocks []*Block, conns *connectionStore, palette *Palette, debug bool) ValidationResult {
	if len(blocks) == 0 {
		return ValidationResult{Error: msgEmpty}
	}
	if debug {
		return ValidationResult{Valid: true}
	}

	var retrieval, generation bool
	for _, b := range blocks {
		switch categoryOf(b, palette) {
		case CategoryRetrieval:
			retrieval = true
		case CategoryGeneration:
			generation = true
		}
	}
	if !retrieval {
		return ValidationResult{Error: msgNoRetrieval}
	}
	if !generation {
		return ValidationResult{Error: msgNoGeneration}
	}

	for _, b := range blocks {
		for _, in := range b.InputNodes {
			if _, ok := conns.byInput(b.ID, in); !ok {
				return ValidationResult{Error: fmt.Sprintf(msgMissingInputf, b.Type, in)}
			}
		}
	}
	return ValidationResult{Valid: true}
}
