// Package httpmsg holds the HTTP primitives (methods, statuses, headers,
// request/response framing) shared by the config translator, the
// connection state machine and the handlers.
package httpmsg

// Method is one of the five verbs this server understands.
type Method int

const (
	MethodUnknown Method = iota
	MethodGET
	MethodPOST
	MethodPUT
	MethodDELETE
	MethodHEAD
)

var methodNames = map[Method]string{
	MethodGET:    "GET",
	MethodPOST:   "POST",
	MethodPUT:    "PUT",
	MethodDELETE: "DELETE",
	MethodHEAD:   "HEAD",
}

var methodValues = map[string]Method{
	"GET":    MethodGET,
	"POST":   MethodPOST,
	"PUT":    MethodPUT,
	"DELETE": MethodDELETE,
	"HEAD":   MethodHEAD,
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseMethod maps a request-line token to a Method. ok is false for any
// token that isn't one of the five recognised verbs.
func ParseMethod(s string) (Method, bool) {
	m, ok := methodValues[s]
	return m, ok
}
