package dbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/bitpop/internal/popup"
)

// Status is the reply of the Status method.
type Status struct {
	Current string `json:"current" yaml:"current"`
	Busy    bool   `json:"busy" yaml:"busy"`
	Pending int    `json:"pending" yaml:"pending"`
}

// ShowArgs are the arguments of the Show method.
type ShowArgs struct {
	Message   string
	Title     string
	Icon      string
	IconBg    string
	Animation int
	Type      string
}

// Client calls a running bitpopd over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the session bus. The caller must Close the client.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{
		conn: conn,
		obj:  conn.Object(PopupBusName, PopupPath),
	}, nil
}

// Close closes the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Show enqueues a dialog and returns its ticket.
func (c *Client) Show(ctx context.Context, args ShowArgs) (string, error) {
	var accepted bool
	var ticket string
	err := c.call(ctx, "Show",
		args.Message, args.Title, args.Icon, args.IconBg, int32(args.Animation), args.Type,
	).Store(&accepted, &ticket)
	if err != nil {
		return "", err
	}
	if !accepted {
		return "", fmt.Errorf("dialog was not accepted")
	}
	return ticket, nil
}

// ShowAndWait shows a dialog and blocks until it is confirmed or cancelled.
// It returns true on confirm.
func (c *Client) ShowAndWait(ctx context.Context, args ShowArgs) (bool, error) {
	matches := []dbus.MatchOption{
		dbus.WithMatchInterface(PopupInterface),
		dbus.WithMatchObjectPath(PopupPath),
	}
	if err := c.conn.AddMatchSignal(matches...); err != nil {
		return false, fmt.Errorf("failed to subscribe to popup signals: %w", err)
	}
	defer c.conn.RemoveMatchSignal(matches...)

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	// Subscribe before showing so a quick answer is not missed.
	ticket, err := c.Show(ctx, args)
	if err != nil {
		return false, err
	}
	return waitForAnswer(ctx, signals, ticket)
}

// waitForAnswer returns true on Confirmed and false on Cancelled for ticket.
func waitForAnswer(ctx context.Context, signals <-chan *dbus.Signal, ticket string) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return false, fmt.Errorf("signal channel closed")
			}
			if sig == nil || len(sig.Body) < 1 {
				continue
			}
			if id, _ := sig.Body[0].(string); id != ticket {
				continue
			}
			switch sig.Name {
			case PopupInterface + ".Confirmed":
				return true, nil
			case PopupInterface + ".Cancelled":
				return false, nil
			}
		}
	}
}

// Hide tears down the dialog on screen.
func (c *Client) Hide(ctx context.Context) error {
	return c.call(ctx, "Hide").Err
}

// UpdateProgress sets the progress of the dialog on screen.
func (c *Client) UpdateProgress(ctx context.Context, value int) error {
	return c.call(ctx, "UpdateProgress", int32(value)).Err
}

// ShowFromService presents a service alert. It returns false when rate-limited.
func (c *Client) ShowFromService(ctx context.Context, alert popup.ServiceAlert) (bool, error) {
	var accepted bool
	err := c.call(ctx, "ShowFromService",
		alert.Message, alert.Title, alert.Icon, string(alert.Action),
	).Store(&accepted)
	return accepted, err
}

// Restore re-shows the most recently closed dialog.
func (c *Client) Restore(ctx context.Context) error {
	return c.call(ctx, "Restore").Err
}

// Status returns the daemon's orchestrator state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	var pending int32
	err := c.call(ctx, "Status").Store(&st.Current, &st.Busy, &pending)
	st.Pending = int(pending)
	return st, err
}

// History returns the daemon's dialog journal, newest first.
func (c *Client) History(ctx context.Context) ([]popup.Entry, error) {
	var data string
	if err := c.call(ctx, "History").Store(&data); err != nil {
		return nil, err
	}

	var entries []popup.Entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	call := c.obj.CallWithContext(ctx, PopupInterface+"."+method, 0, args...)
	if call.Err != nil {
		call.Err = fmt.Errorf("%s: %w", method, call.Err)
	}
	return call
}
