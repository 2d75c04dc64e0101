// Package dbus connects the popup orchestrator to the session bus.
//
// NotificationHost presents dialogs through any org.freedesktop.Notifications
// server and turns its ActionInvoked and NotificationClosed signals into host
// events. PopupServer exports the orchestrator as io.github.jmylchreest.BitPop
// so other processes can queue dialogs, and Client calls it.
package dbus
