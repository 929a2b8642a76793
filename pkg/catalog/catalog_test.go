package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRun(t *testing.T) {
	assert.Equal(t, StatusSuccess, ClassifyRun(0, 0))
	assert.Equal(t, StatusSuccess, ClassifyRun(4, 0))
	assert.Equal(t, StatusPartial, ClassifyRun(3, 2))
	assert.Equal(t, StatusError, ClassifyRun(0, 2))
}

func TestJoinErrors(t *testing.T) {
	assert.Empty(t, JoinErrors(nil))
	assert.Equal(t, "a: boom; b: boom", JoinErrors([]string{"a: boom", "b: boom"}))

	errs := []string{"1", "2", "3", "4", "5", "6", "7"}
	joined := JoinErrors(errs)
	assert.Equal(t, "1; 2; 3; 4; 5", joined)
	assert.Len(t, strings.Split(joined, "; "), MaxStatusErrors)
}

func TestRunResultStatus(t *testing.T) {
	r := RunResult{Total: 5, Updated: 3, Skipped: 2, Errors: []string{"x", "y"}}
	assert.Equal(t, StatusPartial, r.Status())
}

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, ConfidenceNone, ConfidenceFor(0))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(1))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(2))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(3))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(7))
}

func TestToolExternalID(t *testing.T) {
	var tool Tool
	assert.Empty(t, tool.ExternalID(SourceGitHub))

	tool.ExternalIDs = map[string]string{SourceGitHub: "acme/widget"}
	assert.Equal(t, "acme/widget", tool.ExternalID(SourceGitHub))
	assert.Empty(t, tool.ExternalID(SourceTranco))
}
