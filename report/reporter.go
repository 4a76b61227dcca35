package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

type Reporter interface {
	Report(v *Verdict)
	WriteFile(filepath string) error
}

type jsonReporter struct {
	logger   *zap.SugaredLogger
	verdicts []*Verdict
	mu       sync.Mutex
}

// NewJSONReporter is a thread safe reporter that accumulates verdicts and
// writes them out as a JSON array.
func NewJSONReporter(logger *zap.SugaredLogger) Reporter {
	return &jsonReporter{logger: logger}
}

func (j *jsonReporter) Report(v *Verdict) {
	j.mu.Lock()
	j.verdicts = append(j.verdicts, v)
	j.mu.Unlock()

	j.logger.Infow("recorded verdict", "outcome", v.Outcome, "exit-status", v.ExitStatus)
}

func (j *jsonReporter) WriteFile(filepath string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.logger.Infow("saving verdicts", "n", len(j.verdicts))

	bts, err := json.Marshal(j.verdicts)
	if err != nil {
		return fmt.Errorf("failed to marshal verdicts: %w", err)
	}

	if err := os.WriteFile(filepath, bts, 0o777); err != nil {
		return fmt.Errorf("failed to save verdicts: %w", err)
	}

	return nil
}
