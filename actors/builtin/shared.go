// Package builtin holds helpers shared across built-in actors,
// mirroring actors/builtin in the teacher package (the home of
// builtin.RequireNoErr and friends, used throughout miner_actor.go).
package builtin

import (
	"fmt"

	"github.com/strake-network/stakehub/actors/runtime"
	"github.com/strake-network/stakehub/actors/runtime/exitcode"
)

// RequireNoErr aborts rt with code and msg (formatted with args) if
// err is non-nil, matching builtin.RequireNoErr(rt, err, code, msg)
// calls throughout miner_actor.go. Intentionally takes no return value:
// callers invoke it purely for its abort side effect.
func RequireNoErr(rt runtime.Runtime, err error, code exitcode.ExitCode, msg string, args ...interface{}) {
	if err == nil {
		return
	}
	formatted := fmt.Sprintf(msg, args...)
	rt.Abortf(code, "%s: %s", formatted, err)
}

// RequireState aborts with ErrIllegalState unless cond holds, the
// idiom used for precondition checks that are not simple argument
// validation (e.g. "pending_batch.id = max(previous batch id)+1").
func RequireState(rt runtime.Runtime, cond bool, msg string, args ...interface{}) {
	if !cond {
		rt.Abortf(exitcode.ErrIllegalState, msg, args...)
	}
}

// RequireArg aborts with ErrIllegalArgument unless cond holds.
func RequireArg(rt runtime.Runtime, cond bool, msg string, args ...interface{}) {
	if !cond {
		rt.Abortf(exitcode.ErrIllegalArgument, msg, args...)
	}
}
