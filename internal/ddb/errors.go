package ddb

import "errors"

// Reason enumerates the error kinds produced by the DDB (spec.md §7). None
// of them propagate as panics across the public boundary; each is logged at
// the level spec.md prescribes and surfaces as a returned error or a silent
// state transition, matching the sentinel-error-plus-contextual-log idiom
// the teacher uses for destinationUpdateQueue (errQueueClosed, errQueueFull
// in controller/api/destination/update_queue.go).
type Reason int

const (
	ReasonNone Reason = iota
	ReasonDisabled
	ReasonBadKind
	ReasonOrphanEndpoint
	ReasonSuperseded
	ReasonUnknownTarget
	ReasonClearWhileEnabled
)

func (r Reason) String() string {
	switch r {
	case ReasonDisabled:
		return "DISABLED"
	case ReasonBadKind:
		return "BAD_KIND"
	case ReasonOrphanEndpoint:
		return "ORPHAN_ENDPOINT"
	case ReasonSuperseded:
		return "SUPERSEDED"
	case ReasonUnknownTarget:
		return "UNKNOWN_TARGET"
	case ReasonClearWhileEnabled:
		return "CLEAR_WHILE_ENABLED"
	default:
		return "NONE"
	}
}

var (
	ErrDisabled          = errors.New("ddb: disabled")
	ErrBadKind           = errors.New("ddb: change kind/class mismatch")
	ErrOrphanEndpoint    = errors.New("ddb: endpoint announced before its participant")
	ErrClearWhileEnabled = errors.New("ddb: clear() called while enabled")
)

func reasonError(r Reason) error {
	switch r {
	case ReasonDisabled:
		return ErrDisabled
	case ReasonBadKind:
		return ErrBadKind
	case ReasonOrphanEndpoint:
		return ErrOrphanEndpoint
	case ReasonClearWhileEnabled:
		return ErrClearWhileEnabled
	default:
		return nil
	}
}

// fail logs one error kind at the level spec.md §7 prescribes and returns
// its sentinel error (nil for kinds that are handled silently).
func (d *DDB) fail(reason Reason, fields map[string]any, msg string) error {
	entry := d.log
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	switch reason {
	case ReasonDisabled:
		entry.WithField("reason", reason.String()).Warn(msg)
	case ReasonBadKind, ReasonOrphanEndpoint, ReasonClearWhileEnabled:
		entry.WithField("reason", reason.String()).Error(msg)
	case ReasonSuperseded, ReasonUnknownTarget:
		entry.WithField("reason", reason.String()).Debug(msg)
	}
	if d.metrics != nil {
		d.metrics.UpdatesDropped(reason.String())
	}
	return reasonError(reason)
}
