package environment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeardownReportCleanWithNoLeaks(t *testing.T) {
	report := &TeardownReport{Stopped: []string{"app", "db"}}
	assert.True(t, report.Clean())
}

func TestTeardownReportNotCleanWithLeaks(t *testing.T) {
	report := &TeardownReport{
		Stopped: []string{"app"},
		Leaked:  []TeardownFailure{{Service: "db", Err: errors.New("stop timed out")}},
	}
	assert.False(t, report.Clean())
}
