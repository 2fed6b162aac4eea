// Package event carries session lifecycle notifications from repositories to
// interested consumers such as session registries, websocket connection trackers
// and audit logs.
//
// # Core Components
//
// SessionEvent describes a transition (Created, Deleted, Expired, AttributeChanged)
// of a single session. Events are assigned a UUID and timestamp on creation.
//
// Bus keeps the subscriptions and implements Publisher, the narrow interface
// repositories emit into. Subscribe returns a function that removes the subscription.
//
// Transport decides how events reach handlers. SyncTransport runs handlers in the
// publishing goroutine and returns their errors. AsyncTransport queues events in an
// unbounded FIFO and delivers them from one worker goroutine, so ordering per
// session is preserved and publishers never block.
//
// Decorator wraps handlers. Deduplicate suppresses repeated terminal events for the
// same session, which backends with at-least-once notification feeds produce.
//
// # Basic Usage
//
//	transport := event.NewAsyncTransport(event.WithAsyncLogger(logger))
//	bus := event.NewBus(event.WithTransport(transport), event.WithBusLogger(logger))
//
//	bus.Subscribe(event.Apply(
//		event.HandlerFunc(func(ctx context.Context, evt event.SessionEvent) error {
//			return connections.CloseSession(evt.SessionID)
//		}),
//		event.Logging(logger),
//		event.Deduplicate(time.Minute),
//	), event.Deleted, event.Expired)
//
//	go transport.Run(ctx)
//	defer bus.Close()
//
// # Delivery Guarantees
//
// Events are delivered at least once while the process is running. An event
// published after Close returns ErrTransportClosed. Handler panics are recovered and
// reported as ErrHandlerPanicked.
package event
