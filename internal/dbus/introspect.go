package dbus

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/busdemo/internal/model"
)

// Introspection is the reply of an Introspect call.
type Introspection struct {
	Destination string          `json:"destination" yaml:"destination"`
	Path        dbus.ObjectPath `json:"path" yaml:"path"`
	XML         string          `json:"xml" yaml:"xml"`
	Node        introspect.Node `json:"-" yaml:"-"`
}

// InterfaceNames lists the interfaces the object implements.
func (i *Introspection) InterfaceNames() []string {
	names := make([]string, 0, len(i.Node.Interfaces))
	for _, iface := range i.Node.Interfaces {
		names = append(names, iface.Name)
	}
	return names
}

// ChildNames lists the child nodes of the object.
func (i *Introspection) ChildNames() []string {
	names := make([]string, 0, len(i.Node.Children))
	for _, child := range i.Node.Children {
		names = append(names, child.Name)
	}
	return names
}

func introspectCall(destination string, path dbus.ObjectPath) MethodCall {
	return MethodCall{
		Destination: destination,
		Path:        path,
		Interface:   IntrospectableInterface,
		Method:      "Introspect",
	}
}

func validateTarget(destination string, path dbus.ObjectPath) error {
	const op = IntrospectableInterface + ".Introspect"
	if destination == "" {
		return invalidf(op, "destination is empty")
	}
	if !path.IsValid() {
		return invalidf(op, "invalid object path %q", path)
	}
	return nil
}

// Introspect fetches and parses the introspection data of an object,
// blocking until the reply arrives.
func (c *Client) Introspect(ctx context.Context, destination string, path dbus.ObjectPath) (*Introspection, error) {
	if err := validateTarget(destination, path); err != nil {
		return nil, err
	}
	return callSync(c, ctx, model.KindIntrospect, introspectCall(destination, path),
		parseIntrospectReply(destination, path), nil)
}

// IntrospectAsync is the non-blocking form of Introspect. done is invoked
// exactly once, through the client's dispatcher.
func (c *Client) IntrospectAsync(
	ctx context.Context,
	destination string,
	path dbus.ObjectPath,
	done func(*Introspection, error),
) (*Pending[*Introspection], error) {
	if err := validateTarget(destination, path); err != nil {
		return nil, err
	}
	return callAsync(c, ctx, model.KindIntrospect, introspectCall(destination, path),
		parseIntrospectReply(destination, path), nil, done), nil
}

func parseIntrospectReply(destination string, path dbus.ObjectPath) func([]any) (*Introspection, error) {
	return func(body []any) (*Introspection, error) {
		if len(body) != 1 {
			return nil, protocolf("", "expected 1 value, got %d", len(body))
		}
		data, ok := body[0].(string)
		if !ok {
			return nil, protocolf("", "reply has type %T, want string", body[0])
		}
		return ParseIntrospection(destination, path, data)
	}
}

// ParseIntrospection parses introspection XML.
func ParseIntrospection(destination string, path dbus.ObjectPath, data string) (*Introspection, error) {
	result := &Introspection{
		Destination: destination,
		Path:        path,
		XML:         data,
	}
	if err := xml.Unmarshal([]byte(data), &result.Node); err != nil {
		return nil, protocolf("parse introspection", "malformed introspection data: %v", err)
	}
	return result, nil
}

// String renders a short description for logs and status lines.
func (i *Introspection) String() string {
	return fmt.Sprintf("%s %s: %d interfaces, %d children",
		i.Destination, i.Path, len(i.Node.Interfaces), len(i.Node.Children))
}
