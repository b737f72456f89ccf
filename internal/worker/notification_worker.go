package worker

import (
	"github.com/opsdesk/helpdesk/internal/events"
	"github.com/opsdesk/helpdesk/internal/notify"
)

// StartNotificationWorker subscribes the fan-out dispatcher to the
// mutation event stream.
func StartNotificationWorker(dispatcher events.Dispatcher, fanout *notify.Dispatcher) {
	if fanout == nil {
		return
	}
	fanout.RegisterHandlers(dispatcher)
}
