package merging

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ValidationError rejects a merge plan or reversal before any write happens
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("merge validation failed: %s", e.Reason)
}

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PartialExecutionError reports a merge where some retirees could not be
// retired. Successful writes are kept; the result lists what happened to
// every participant.
type PartialExecutionError struct {
	Result *models.ExecuteResult
}

func (e *PartialExecutionError) Error() string {
	reasons := make([]string, 0, len(e.Result.FailedRetirees))
	for _, f := range e.Result.FailedRetirees {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.RetireeID, f.Reason))
	}
	return fmt.Sprintf("merge partially executed, %d retiree(s) failed: %s",
		len(e.Result.FailedRetirees), strings.Join(reasons, "; "))
}

func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	if httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "sql: no rows in result set")
}
