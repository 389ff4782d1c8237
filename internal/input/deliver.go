package input

import "log/slog"

// deliverKey hands ev to sink. A panic in the sink is logged and contained,
// so the hook procedure still chains to the next hook.
func deliverKey(log *slog.Logger, sink Sink, ev KeyEvent) {
	defer recoverCallback(log, "keyboard")
	sink.HandleKey(ev)
}

// deliverMouse is deliverKey for mouse events
func deliverMouse(log *slog.Logger, sink Sink, ev MouseEvent) {
	defer recoverCallback(log, "mouse")
	sink.HandleMouse(ev)
}

// A panic must not unwind into the OS hook chain.
func recoverCallback(log *slog.Logger, kind string) {
	if r := recover(); r != nil {
		log.Error("recovered panic in hook callback", "hook", kind, "panic", r)
	}
}
