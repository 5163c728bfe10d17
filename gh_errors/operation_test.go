package gh_errors

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hugo-valle/classroom-pilot/utils/logger"
)

func newCaptureLogger() (*bytes.Buffer, logger.Logger) {
	buf := &bytes.Buffer{}
	log := logger.NewWriterLogger(buf)
	log.SetLevel(logger.LevelDebug)
	return buf, log
}

// TestOperation_SuccessLogsInfo verifies the explicit success path emits an
// info entry with the operation label
func TestOperation_SuccessLogsInfo(t *testing.T) {
	buf, log := newCaptureLogger()

	op := BeginOperation(log, "sync repository", map[string]string{"repo": "hw1-octocat"})
	op.Success("repository up to date")
	op.End()

	output := buf.String()
	assert.Contains(t, output, "[DEBUG] starting operation sync repository (repo=hw1-octocat)")
	assert.Contains(t, output, "[INFO] operation sync repository (repo=hw1-octocat) succeeded")
	assert.Contains(t, output, "repository up to date")
}

// TestOperation_ErrorProducesTaxonomyError verifies the failure path logs at
// error level and converts the cause with the scope's fields as context
func TestOperation_ErrorProducesTaxonomyError(t *testing.T) {
	buf, log := newCaptureLogger()

	op := BeginOperation(log, "fetch repository", map[string]string{
		"org":  "acme-classroom",
		"repo": "hw1-octocat",
	})
	ghErr := op.Error("repository lookup failed", apiError(http.StatusNotFound, "Not Found", nil))
	op.End()

	assert.Equal(t, ErrorTypeRepositoryNotFound, ghErr.Type)
	assert.Equal(t, "repository lookup failed", ghErr.Message, "Explicit message should win over the headline")
	assert.Equal(t, "acme-classroom", ghErr.Context["org"])
	assert.Equal(t, "hw1-octocat", ghErr.Context["repo"])
	assert.Equal(t, "fetch repository", ghErr.Context["operation"])
	assert.Contains(t, buf.String(), "[ERROR] operation fetch repository")
}

// TestOperation_ErrorKeepsHeadlineWithoutMessage verifies an empty message
// leaves the variant's headline in place
func TestOperation_ErrorKeepsHeadlineWithoutMessage(t *testing.T) {
	_, log := newCaptureLogger()

	op := BeginOperation(log, "fetch repository", nil)
	ghErr := op.Error("", errors.New("dial tcp: connection refused"))
	op.End()

	assert.Equal(t, ErrorTypeNetwork, ghErr.Type)
	assert.Equal(t, "network failure talking to GitHub", ghErr.Message)
}

// TestOperation_PlainReturnLogsDebug verifies a scope closed without an
// explicit outcome still emits a completion entry
func TestOperation_PlainReturnLogsDebug(t *testing.T) {
	buf, log := newCaptureLogger()

	op := BeginOperation(log, "list repositories", nil)
	op.End()

	assert.Contains(t, buf.String(), "[DEBUG] operation list repositories finished")
}

// TestOperation_PanicIsLoggedAndRepanicked verifies a panic inside the scope
// is recorded at error level and re-raised for the caller
func TestOperation_PanicIsLoggedAndRepanicked(t *testing.T) {
	buf, log := newCaptureLogger()

	assert.PanicsWithValue(t, "kaboom", func() {
		op := BeginOperation(log, "deploy secret", nil)
		defer op.End()
		panic("kaboom")
	}, "Should re-raise the original panic value")

	output := buf.String()
	assert.Contains(t, output, "[ERROR] operation deploy secret panicked")
	assert.Contains(t, output, "kaboom")
}

// TestOperation_SuccessSuppressesCompletionEntry verifies End stays quiet
// after an explicit outcome
func TestOperation_SuccessSuppressesCompletionEntry(t *testing.T) {
	buf, log := newCaptureLogger()

	op := BeginOperation(log, "add collaborator", nil)
	op.Success("invited")
	op.End()

	finished := strings.Count(buf.String(), "finished")
	assert.Equal(t, 0, finished, "End should not log completion after Success")
}
