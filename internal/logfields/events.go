package logfields

import "go.uber.org/zap"

func EventProvider(val string) zap.Field {
	return zap.String("event_provider", val)
}

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func DeliveryID(val string) zap.Field {
	return zap.String("github.delivery_id", val)
}

func WebhookType(val string) zap.Field {
	return zap.String("github.webhook_type", val)
}

// EventKind is the classified kind of a webhook event.
func EventKind(val string) zap.Field {
	return zap.String("event_kind", val)
}

func Reason(val string) zap.Field {
	return zap.String("reason", val)
}

func Operation(val string) zap.Field {
	return zap.String("operation", val)
}

func Check(val string) zap.Field {
	return zap.String("check", val)
}

func Command(val string) zap.Field {
	return zap.String("command", val)
}
