package source

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mutterBusName = "org.gnome.Mutter.IdleMonitor"
	mutterPath    = dbus.ObjectPath("/org/gnome/Mutter/IdleMonitor/Core")
	mutterMethod  = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

// idleCaller is the slice of dbus.BusObject the reader needs.
type idleCaller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// MutterReader reads the GNOME Mutter idle monitor over the session bus.
// It works on both X11 and Wayland GNOME sessions.
type MutterReader struct {
	conn *dbus.Conn
	obj  idleCaller
}

// NewMutterReader connects to the session bus.
func NewMutterReader() (*MutterReader, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %v", ErrUnavailable, err)
	}

	return &MutterReader{
		conn: conn,
		obj:  conn.Object(mutterBusName, mutterPath),
	}, nil
}

// Name implements IdleReader.
func (m *MutterReader) Name() string {
	return "mutter"
}

// IdleTime calls GetIdletime, which returns idle milliseconds.
func (m *MutterReader) IdleTime(ctx context.Context) (time.Duration, error) {
	var ms uint64
	if err := m.obj.CallWithContext(ctx, mutterMethod, 0).Store(&ms); err != nil {
		return 0, fmt.Errorf("GetIdletime: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Close closes the bus connection.
func (m *MutterReader) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}
