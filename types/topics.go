package types

// Topic tokens shared across services. Services assemble bus topics from
// these so a renamed token changes every producer and consumer together.
const (
	TokConfig    = "config"
	TokSvc       = "svc"
	TokState     = "state"
	TokControl   = "control"
	TokProvision = "provision"
	TokNet       = "net"
	TokLink      = "link"
	TokUpdate    = "update"
	TokBegin     = "begin"
	TokProgress  = "progress"
	TokEnd       = "end"
	TokInput     = "input"
	TokButton    = "button"
	TokHeartbeat = "heartbeat"
)

// Control verbs accepted on {"provision","control",<verb>}.
const (
	CtrlProvision = "provision"
	CtrlDisable   = "disable"
	CtrlStatus    = "status"
)
