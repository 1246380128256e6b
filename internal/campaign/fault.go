package campaign

import (
	"fmt"

	"go.uber.org/zap"
)

// FaultReporter receives unexpected failures from background work: storage
// errors and recovered panics.
type FaultReporter interface {
	Fault(source string, err error)
}

type logFaults struct{ log *zap.Logger }

func (l logFaults) Fault(source string, err error) {
	l.log.Error("unhandled fault", zap.String("source", source), zap.Error(err))
}

// recoverFault must be deferred directly.
func recoverFault(r FaultReporter, source string) {
	if v := recover(); v != nil {
		err, ok := v.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", v)
		}
		r.Fault(source, err)
	}
}
