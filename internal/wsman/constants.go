package wsman

// XML namespaces used in WS-Management envelopes.
const (
	NamespaceEnvelope    = "http://www.w3.org/2003/05/soap-envelope"
	NamespaceAddressing  = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	NamespaceWSMan       = "http://schemas.dmtf.org/wbem/wsman/1/wsman.xsd"
	NamespaceMSWSMan     = "http://schemas.microsoft.com/wbem/wsman/1/wsman.xsd"
	NamespaceShell       = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell"
	NamespaceEnumeration = "http://schemas.xmlsoap.org/ws/2004/09/enumeration"
	NamespaceWSManFault  = "http://schemas.microsoft.com/wbem/wsman/1/wsmanfault"
)

// AddressAnonymous is the WS-Addressing anonymous reply-to role.
const AddressAnonymous = "http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous"

// Action URIs, one per shell operation.
const (
	ActionCreate    = "http://schemas.xmlsoap.org/ws/2004/09/transfer/Create"
	ActionDelete    = "http://schemas.xmlsoap.org/ws/2004/09/transfer/Delete"
	ActionCommand   = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Command"
	ActionReceive   = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Receive"
	ActionSend      = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Send"
	ActionSignal    = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/Signal"
	ActionEnumerate = "http://schemas.xmlsoap.org/ws/2004/09/enumeration/Enumerate"
	ActionPull      = "http://schemas.xmlsoap.org/ws/2004/09/enumeration/Pull"
)

// Resource URIs.
const (
	// ResourceShellCmd addresses the Windows cmd shell processor.
	ResourceShellCmd = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/cmd"
	// ResourceWMICIMv2 addresses all classes of the WMI root/cimv2 namespace,
	// used for WQL enumeration.
	ResourceWMICIMv2 = "http://schemas.microsoft.com/wbem/wsman/1/wmi/root/cimv2/*"
)

// CommandState marker values reported in receive responses.
const (
	CommandStateDone    = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Done"
	CommandStateRunning = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Running"
	CommandStatePending = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/CommandState/Pending"
)

// Signal codes accepted by the Signal operation.
const (
	SignalTerminate = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/signal/terminate"
	SignalCtrlC     = "http://schemas.microsoft.com/wbem/wsman/1/windows/shell/signal/ctrl_c"
)

// DialectWQL is the filter dialect for WQL queries.
const DialectWQL = "http://schemas.microsoft.com/wbem/wsman/1/WQL"

// FaultCodeOperationTimeout (ERROR_WSMAN_OPERATION_TIMEDOUT, 0x80338029) is
// raised when a receive request outlives the endpoint's OperationTimeout
// without the command producing output. It means "nothing yet", not failure;
// receive loops resend the same request.
const FaultCodeOperationTimeout = "2150858793"

// Stream names carried by cmd shells.
const (
	StreamStdin  = "stdin"
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)
