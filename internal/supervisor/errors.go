package supervisor

import "errors"

// ErrUsage marks a usage error: missing command, inconsistent flags, -n
// with an empty item list. Callers exit 2.
var ErrUsage = errors.New("supervisor: usage error")

// ErrSpawn marks failure to start a child process. Callers exit 127.
var ErrSpawn = errors.New("supervisor: spawn failed")

// ExitAbandoned is the reserved aggregate exit code reported when every
// remaining child becomes unsignalable and the supervisor gives up.
const ExitAbandoned = 999
