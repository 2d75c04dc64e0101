package dbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// EmitConfirmed emits the Confirmed signal for a Show ticket.
func (s *PopupServer) EmitConfirmed(ticket string) error {
	return s.emitSignal("Confirmed", ticket)
}

// EmitCancelled emits the Cancelled signal for a Show ticket.
func (s *PopupServer) EmitCancelled(ticket string) error {
	return s.emitSignal("Cancelled", ticket)
}

// EmitServiceAction emits the ServiceAction signal after a service alert
// carrying action was confirmed.
func (s *PopupServer) EmitServiceAction(action popup.ServiceAction) error {
	return s.emitSignal("ServiceAction", string(action))
}

func (s *PopupServer) emitSignal(name string, values ...interface{}) error {
	s.mu.RLock()
	e := s.emitter
	s.mu.RUnlock()
	if e == nil {
		return fmt.Errorf("not connected to D-Bus")
	}

	if err := e.Emit(dbus.ObjectPath(PopupPath), PopupInterface+"."+name, values...); err != nil {
		return fmt.Errorf("failed to emit %s signal: %w", name, err)
	}

	s.logger.Debug("emitted signal", "signal", name, "values", values)
	return nil
}

// emit is emitSignal for callbacks, where failures can only be logged.
func (s *PopupServer) emit(name string, values ...interface{}) {
	if err := s.emitSignal(name, values...); err != nil {
		s.logger.Warn("failed to emit signal", "signal", name, "error", err)
	}
}
