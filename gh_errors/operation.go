package gh_errors

import (
	"time"

	"github.com/google/uuid"
	"github.com/hugo-valle/classroom-pilot/utils/logger"
)

// Operation is a scoped logging context around a single named API operation.
// It never retries. Every exit path produces a leveled log entry: an explicit
// Success logs at info, an explicit Error logs at error and converts the
// cause into a taxonomy error for the caller to return, a plain return logs
// completion at debug, and a panic inside the scope is logged at error and
// re-panicked. Use it for fan-out work where each item's failure is recorded
// without re-attempting.
type Operation struct {
	id     uuid.UUID
	name   string
	fields map[string]string
	log    logger.Logger
	start  time.Time
	done   bool
}

// BeginOperation opens a named operation scope and logs its start at debug.
// fields carry the operation's context (repo, organization, ...) and end up
// in the context of any taxonomy error produced by Error. Callers must
// `defer op.End()`.
func BeginOperation(log logger.Logger, name string, fields map[string]string) *Operation {
	if log == nil {
		log = logger.Default()
	}
	op := &Operation{
		id:     uuid.New(),
		name:   name,
		fields: cloneContext(fields),
		log:    log,
		start:  time.Now(),
	}
	op.log.Debugf("starting operation %s [op %s]", op.label(), op.id)
	return op
}

// Success records a successful outcome and logs it at info level
func (o *Operation) Success(message string) {
	o.done = true
	o.log.Infof("operation %s succeeded after %v: %s [op %s]", o.label(), o.elapsed(), message, o.id)
}

// Error records a failed outcome: it logs at error level, converts cause
// into the appropriate taxonomy variant (with the scope's fields merged into
// its context) and returns it for the caller to propagate.
func (o *Operation) Error(message string, cause error) *Error {
	o.done = true
	o.log.Errorf("operation %s failed after %v: %s: %v [op %s]", o.label(), o.elapsed(), message, cause, o.id)

	ghErr := FromError(cause, o.fields)
	if message != "" {
		ghErr.Message = message
	}
	return ghErr.WithContext("operation", o.name)
}

// End closes the scope. Deferred by the caller, it guarantees emission on
// the paths Success and Error did not cover: a return without an explicit
// outcome logs completion at debug, and a panic inside the scope is logged
// at error level before being re-raised.
func (o *Operation) End() {
	if r := recover(); r != nil {
		o.log.Errorf("operation %s panicked after %v: %v [op %s]", o.label(), o.elapsed(), r, o.id)
		panic(r)
	}
	if o.done {
		return
	}
	o.log.Debugf("operation %s finished after %v [op %s]", o.label(), o.elapsed(), o.id)
}

func (o *Operation) label() string {
	if len(o.fields) == 0 {
		return o.name
	}
	return o.name + " (" + formatContext(o.fields) + ")"
}

func (o *Operation) elapsed() time.Duration {
	return time.Since(o.start).Round(time.Millisecond)
}
