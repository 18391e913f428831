package notify

import (
	"hurst-trader/interfaces"
	"hurst-trader/logging"
)

var (
	_ interfaces.Notifier = (*LogNotifier)(nil)
	_ interfaces.Notifier = Multi(nil)
)

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger logging.LoggerInterface
}

func (n *LogNotifier) Notify(text string) {
	n.Logger.Info("[notify] %s", text)
}

// Multi fans a notification out to every notifier in order.
type Multi []interfaces.Notifier

func (m Multi) Notify(text string) {
	for _, n := range m {
		if n != nil {
			n.Notify(text)
		}
	}
}
