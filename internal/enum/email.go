package enum

type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"
	ConfidenceLow    ConfidenceTier = "low"
	ConfidenceFailed ConfidenceTier = "failed"
)

func (t ConfidenceTier) String() string {
	return string(t)
}

type EmailSecurity string

const (
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "starttls"
	EmailSecurityNone     EmailSecurity = "none"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type SessionState string

const (
	SessionPolling SessionState = "polling"
	SessionStopped SessionState = "stopped"
)

func (t SessionState) String() string {
	return string(t)
}
