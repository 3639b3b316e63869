package auth

// Observer is notified of auth outcomes. internal/metrics implements it.
type Observer interface {
	OTPRequested(outcome string)
	OTPVerified(outcome string)
	SessionCreated()
	SessionDestroyed()
}

// Outcome labels reported to the Observer.
const (
	OutcomeSent           = "sent"
	OutcomeCooldown       = "cooldown"
	OutcomeInvalidInput   = "invalid_input"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeSuccess        = "success"
	OutcomeError          = "error"
)

type nopObserver struct{}

func (nopObserver) OTPRequested(string) {}
func (nopObserver) OTPVerified(string)  {}
func (nopObserver) SessionCreated()     {}
func (nopObserver) SessionDestroyed()   {}
