package wsman

import "fmt"

// Fault is a WS-Management fault returned by the endpoint. Code carries the
// numeric WSManFault code when the detail block has one; Subcode and Reason
// come from the SOAP fault itself.
type Fault struct {
	Code    string
	Subcode string
	Reason  string
	Message string
}

func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" {
		msg = f.Reason
	}
	switch {
	case f.Code != "" && msg != "":
		return fmt.Sprintf("wsman fault %s: %s", f.Code, msg)
	case f.Code != "":
		return "wsman fault " + f.Code
	case msg != "":
		return "wsman fault: " + msg
	default:
		return "wsman fault"
	}
}

// IsOperationTimeout reports whether this is the endpoint's OperationTimeout
// expiry, the one fault a receive loop resends through.
func (f *Fault) IsOperationTimeout() bool {
	return f.Code == FaultCodeOperationTimeout
}
