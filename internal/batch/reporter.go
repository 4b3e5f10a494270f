package batch

import (
	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

// LogReporter writes every outcome to the log.
type LogReporter struct{}

// Record implements core.Reporter.
func (LogReporter) Record(address string, outcome core.Outcome) {
	switch outcome.Kind {
	case core.OutcomeLanded:
		if !outcome.HasSignature() {
			if outcome.Reason != "" {
				logger.Info("%s landed (%s): %d", address, outcome.Reason, outcome.Amount)
				return
			}
			logger.Info("%s: %d", address, outcome.Amount)
			return
		}
		logger.Info("%s landed, check the info: https://solscan.io/tx/%s", address, outcome.Signature)
	case core.OutcomeSkipped:
		logger.Info("%s skipped: %s", address, outcome.Reason)
	default:
		logger.Error("%s abandoned: %s", address, outcome.Reason)
	}
}

// MultiReporter fans every outcome out to several reporters.
type MultiReporter []core.Reporter

// Record implements core.Reporter.
func (m MultiReporter) Record(address string, outcome core.Outcome) {
	for _, r := range m {
		safeRecord(r, address, outcome)
	}
}

// safeRecord shields the caller from a reporter that panics.
func safeRecord(r core.Reporter, address string, outcome core.Outcome) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Reporter failed while recording %s: %v", address, rec)
		}
	}()
	r.Record(address, outcome)
}
