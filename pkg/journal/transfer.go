package journal

import (
	"time"

	"github.com/ethpandaops/fuzzsync/pkg/deployment"
)

// Transfer is one journaled deployment operation.
type Transfer struct {
	ID         uint   `gorm:"primaryKey"`
	JobID      string `gorm:"not null;index"`
	Deployment string `gorm:"not null"`
	Operation  string `gorm:"not null;index"`
	Outcome    string `gorm:"not null"`
	Target     string
	Path       string
	Reason     string
	Error      string `gorm:"type:text"`
	Tolerable  bool
	DurationMs int64
	CreatedAt  time.Time `gorm:"index"`
}

// FromResult converts a deployment result into a transfer record.
func FromResult(res deployment.Result) *Transfer {
	t := &Transfer{
		Deployment: res.Deployment,
		Operation:  string(res.Op),
		Outcome:    res.Outcome.String(),
		Target:     res.Target,
		Path:       res.Path,
		Reason:     res.Reason,
		Tolerable:  res.Tolerable,
		DurationMs: res.Duration.Milliseconds(),
	}

	if res.Err != nil {
		t.Error = res.Err.Error()
	}

	return t
}
