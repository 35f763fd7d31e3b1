// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package permission

import (
	"context"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/voyago/geotrack/internal/logger"
)

const (
	dbusListNamesAddress = "org.freedesktop.DBus.ListNames"
	geoClueAgentDBusName = "org.freedesktop.GeoClue2.DemoAgent"

	nameOwnerChangedMember = "NameOwnerChanged"
	signalBufferSize       = 8
	busReconnectDelay      = 5 * time.Second
)

// DBusMonitor derives the location permission state from the presence of the
// GeoClue authorization agent on the D-Bus session bus: with no agent around,
// location requests cannot be authorized.
type DBusMonitor struct {
	logger *logger.Logger
}

// NewDBusMonitor returns a Monitor backed by the D-Bus session bus.
func NewDBusMonitor(logger *logger.Logger) *DBusMonitor {
	return &DBusMonitor{logger: logger}
}

// Query reports StateGranted while the GeoClue agent owns its bus name,
// StatePrompt when it does not and StateUnknown when the session bus cannot be
// reached at all.
func (m *DBusMonitor) Query(ctx context.Context) State {
	running, err := agentIsRunning(ctx)
	if err != nil {
		m.logger.Debug("failed to query session bus for the geoclue agent", logger.Err(err))
		return StateUnknown
	}
	if running {
		return StateGranted
	}
	return StatePrompt
}

// Watch emits a state change whenever the GeoClue agent appears on or vanishes
// from the session bus. The bus connection is re-established on failure.
func (m *DBusMonitor) Watch(ctx context.Context) <-chan State {
	out := make(chan State)

	go func() {
		defer close(out)

		for {
			conn := m.connectToSessionBus(ctx)
			if conn == nil {
				return // the context was cancelled, exit
			}

			if !m.subscribeNameOwnerChanged(ctx, conn) {
				continue
			}

			sigCh := make(chan *dbus.Signal, signalBufferSize)
			conn.Signal(sigCh)

			m.handleSignals(ctx, sigCh, out)

			// Clean up before reconnect
			conn.RemoveSignal(sigCh)
			if err := conn.Close(); err != nil {
				m.logger.Error("failed to close session bus connection", logger.Err(err))
			}

			// If we're here because of ctx cancel, exit; otherwise reconnect
			select {
			case <-ctx.Done():
				return
			default:
				time.Sleep(busReconnectDelay)
			}
		}
	}()

	return out
}

// connectToSessionBus establishes a connection to the session D-Bus with automatic
// reconnection handling on failure. It continuously retries until the provided
// context is canceled.
func (m *DBusMonitor) connectToSessionBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			select {
			case <-time.After(busReconnectDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		// Ensure cleanup on context cancellation
		go func() {
			<-ctx.Done()
			if err := conn.Close(); err != nil {
				m.logger.Debug("failed to close session bus connection", logger.Err(err))
			}
		}()

		return conn
	}
}

func (m *DBusMonitor) subscribeNameOwnerChanged(ctx context.Context, conn *dbus.Conn) bool {
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember(nameOwnerChangedMember),
		dbus.WithMatchArg(0, geoClueAgentDBusName),
	); err != nil {
		m.logger.Error("failed to subscribe to dbus signal", logger.Err(err))
		if err = conn.Close(); err != nil {
			m.logger.Error("failed to close session bus connection", logger.Err(err))
		}
		select {
		case <-time.After(busReconnectDelay):
			return false
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (m *DBusMonitor) handleSignals(ctx context.Context, sigCh chan *dbus.Signal, out chan<- State) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				// connection likely closed; try to reconnect
				return
			}
			state, ok := stateFromSignal(sgn)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- state:
			}
		}
	}
}

// stateFromSignal translates a NameOwnerChanged signal for the agent name into a
// permission state: a new owner grants, a vanished owner denies.
func stateFromSignal(sgn *dbus.Signal) (State, bool) {
	if len(sgn.Body) != 3 {
		return StateUnknown, false
	}
	name, ok := sgn.Body[0].(string)
	if !ok || !strings.EqualFold(name, geoClueAgentDBusName) {
		return StateUnknown, false
	}
	newOwner, ok := sgn.Body[2].(string)
	if !ok {
		return StateUnknown, false
	}
	if newOwner == "" {
		return StateDenied, true
	}
	return StateGranted, true
}

func agentIsRunning(ctx context.Context) (isRunning bool, err error) {
	var list []string
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer func() {
		_ = conn.Close()
	}()

	if err = conn.BusObject().Call(dbusListNamesAddress, 0).Store(&list); err != nil {
		return false, err
	}

	for _, v := range list {
		if strings.EqualFold(v, geoClueAgentDBusName) {
			return true, nil
		}
	}
	return false, nil
}
