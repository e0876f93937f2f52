package payment

import "github.com/vitwit/usdcpay/types"

// NoticeLevel is the severity of a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a message meant for the buyer, the equivalent of an alert box.
type Notice struct {
	Level   NoticeLevel
	Code    types.ErrorCode
	Message string
}

// Notifier surfaces notices to the buyer.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type noopNotifier struct{}

func (noopNotifier) Notify(Notice) {}

const successMessage = "Payment successful!"
