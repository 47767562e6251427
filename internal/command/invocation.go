// Package command turns one line of operator input into a structured
// Invocation. Resolution is pure: it never touches the network, never
// starts a process, and never fails. Anything it cannot make sense of
// becomes an Unknown invocation carrying a readable diagnostic, or, for
// input without the command prefix, is handed back to the caller as
// free text.
package command

// Prefix marks input that must be treated as a command.
const Prefix = "/"

// Invocation is one resolved action request. The set of implementations
// is closed; switch on the concrete type to execute one.
type Invocation interface {
	isInvocation()
}

// Ping checks gateway liveness.
type Ping struct{}

// List enumerates the gateway's tool catalog.
type List struct{}

// Init performs the session handshake and reports the session id.
type Init struct{}

// Help describes the available commands. A non-empty Topic names a
// task category.
type Help struct {
	Topic string
}

// Call invokes a gateway tool. ArgsJSON is the raw, unparsed argument
// payload; it is validated only when the call is executed.
type Call struct {
	Tool     string
	ArgsJSON string
}

// Task runs a catalog task. RawArgs are the unvalidated argument tokens
// following the task key.
type Task struct {
	Category string
	Key      string
	RawArgs  []string
}

// Unknown is input that used the command prefix but matched nothing.
type Unknown struct {
	Message string
}

func (Ping) isInvocation()    {}
func (List) isInvocation()    {}
func (Init) isInvocation()    {}
func (Help) isInvocation()    {}
func (Call) isInvocation()    {}
func (Task) isInvocation()    {}
func (Unknown) isInvocation() {}

// Kind returns a short name for inv, suitable for logs and JSON output.
func Kind(inv Invocation) string {
	switch inv.(type) {
	case Ping:
		return "ping"
	case List:
		return "list"
	case Init:
		return "init"
	case Help:
		return "help"
	case Call:
		return "call"
	case Task:
		return "task"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}
