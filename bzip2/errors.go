package bzip2

import "github.com/cockroachdb/errors"

// wrapf annotates an internal sentinel Error with call-site context (which
// field or offset failed a check) before it crosses the package's public
// API boundary, the way elliotnunn-BeHierarchic wraps its own domain
// sentinels with github.com/cockroachdb/errors at its API edges rather than
// losing the underlying cause. errors.Is still finds the wrapped sentinel,
// so callers matching ErrCorrupt/ErrMagic/etc. are unaffected by the extra
// context.
func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether err, possibly wrapped by wrapf along the way, is (in
// the errors.Is sense) the given sentinel. Exported so callers outside this
// package don't need to import cockroachdb/errors themselves just to
// unwrap one of ours.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
