package state

import "github.com/tliron/commonlog"

var log = commonlog.GetLogger("luavm.state")

func defaultPanic(t *Thread, err *Error) {
	log.Criticalf("thread %s: unprotected error: %s", t.id, err.Error())
}
