package dbus

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"
)

const opBuild = "build notification"

// Payload is the argument tuple of org.freedesktop.Notifications.Notify.
// Field order is the wire order and must not change.
type Payload struct {
	AppName       string
	ReplacesID    uint32
	AppIcon       string
	Summary       string
	Body          string
	Actions       []string // Alternating key, label pairs
	Hints         map[string]dbus.Variant
	ExpireTimeout int32
}

// Args returns the payload as a fresh argument list in wire order.
func (p Payload) Args() []any {
	actions := make([]string, len(p.Actions))
	copy(actions, p.Actions)

	hints := make(map[string]dbus.Variant, len(p.Hints))
	for k, v := range p.Hints {
		hints[k] = v
	}

	return []any{
		p.AppName,
		p.ReplacesID,
		p.AppIcon,
		p.Summary,
		p.Body,
		actions,
		hints,
		p.ExpireTimeout,
	}
}

// Signature returns the D-Bus signature of Args. For any built payload
// this is NotifySignature.
func (p Payload) Signature() dbus.Signature {
	return dbus.SignatureOf(p.Args()...)
}

// ParsedActions converts the flat action list to structured form.
// An incomplete trailing pair is ignored.
func (p Payload) ParsedActions() []Action {
	actions := make([]Action, 0, len(p.Actions)/2)
	for i := 0; i+1 < len(p.Actions); i += 2 {
		actions = append(actions, Action{
			Key:   p.Actions[i],
			Label: p.Actions[i+1],
		})
	}
	return actions
}

// Urgency extracts the urgency hint, UrgencyNormal if not specified.
func (p Payload) Urgency() byte {
	if v, ok := p.Hints["urgency"]; ok {
		if b, ok := v.Value().(byte); ok {
			return b
		}
	}
	return UrgencyNormal
}

// Category extracts the category hint.
func (p Payload) Category() string {
	return p.stringHint("category")
}

// DesktopEntry extracts the desktop-entry hint.
func (p Payload) DesktopEntry() string {
	return p.stringHint("desktop-entry")
}

// Transient returns true if the transient hint is set.
func (p Payload) Transient() bool {
	return p.boolHint("transient")
}

// Resident returns true if the resident hint is set.
// Resident notifications stay open after an action is invoked.
func (p Payload) Resident() bool {
	return p.boolHint("resident")
}

func (p Payload) stringHint(key string) string {
	if v, ok := p.Hints[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func (p Payload) boolHint(key string) bool {
	if v, ok := p.Hints[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

// ActionsFromFlat converts a flat key, label, key, label... list into
// actions. An odd-length list is rejected.
func ActionsFromFlat(flat []string) ([]Action, error) {
	if len(flat)%2 != 0 {
		return nil, invalidf(opBuild, "actions must be key/label pairs, got %d strings", len(flat))
	}
	actions := make([]Action, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		actions = append(actions, Action{Key: flat[i], Label: flat[i+1]})
	}
	return actions, nil
}

// Build validates req and converts it to the Notify argument tuple.
// It is a pure function: building the same request twice gives equal
// payloads, and nothing in req is retained.
//
// Accepted hint values are byte, bool, int16, uint16, int32, uint32,
// int64, uint64, float64, string, []byte, int (sent as int32) and a
// dbus.Variant holding one of those. Well-known hints are coerced to the
// type the notification specification gives them, e.g. urgency is sent
// as a byte.
func Build(req NotificationRequest) (Payload, error) {
	if req.AppName == "" {
		return Payload{}, invalidf(opBuild, "app name is empty")
	}
	for _, f := range []struct{ name, value string }{
		{"app name", req.AppName},
		{"app icon", req.AppIcon},
		{"summary", req.Summary},
		{"body", req.Body},
	} {
		if err := checkText(f.name, f.value); err != nil {
			return Payload{}, err
		}
	}

	var replacesID uint32
	switch {
	case req.ReplacesID < 0:
		replacesID = 0
	case req.ReplacesID > math.MaxUint32:
		return Payload{}, invalidf(opBuild, "replaces id %d does not fit in uint32", req.ReplacesID)
	default:
		replacesID = uint32(req.ReplacesID)
	}

	if req.ExpireTimeout < ExpireDefault {
		return Payload{}, invalidf(opBuild, "expire timeout %d is below -1", req.ExpireTimeout)
	}

	actions := make([]string, 0, len(req.Actions)*2)
	for i, a := range req.Actions {
		if a.Key == "" {
			return Payload{}, invalidf(opBuild, "action %d has an empty key", i)
		}
		if err := checkText("action key", a.Key); err != nil {
			return Payload{}, err
		}
		if err := checkText("action label", a.Label); err != nil {
			return Payload{}, err
		}
		actions = append(actions, a.Key, a.Label)
	}

	hints := make(map[string]dbus.Variant, len(req.Hints))
	for _, key := range sortedKeys(req.Hints) {
		if err := checkText("hint name", key); err != nil {
			return Payload{}, err
		}
		v, err := hintVariant(key, req.Hints[key])
		if err != nil {
			return Payload{}, err
		}
		hints[key] = v
	}

	return Payload{
		AppName:       req.AppName,
		ReplacesID:    replacesID,
		AppIcon:       req.AppIcon,
		Summary:       req.Summary,
		Body:          req.Body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: req.ExpireTimeout,
	}, nil
}

// ParsePayload decodes a Notify argument list. It is the inverse of Args.
func ParsePayload(body []any) (Payload, error) {
	const op = "parse notification"
	if len(body) != 8 {
		return Payload{}, protocolf(op, "expected 8 arguments, got %d", len(body))
	}

	var (
		p  Payload
		ok bool
	)
	if p.AppName, ok = body[0].(string); !ok {
		return Payload{}, protocolf(op, "app_name has type %T", body[0])
	}
	if p.ReplacesID, ok = body[1].(uint32); !ok {
		return Payload{}, protocolf(op, "replaces_id has type %T", body[1])
	}
	if p.AppIcon, ok = body[2].(string); !ok {
		return Payload{}, protocolf(op, "app_icon has type %T", body[2])
	}
	if p.Summary, ok = body[3].(string); !ok {
		return Payload{}, protocolf(op, "summary has type %T", body[3])
	}
	if p.Body, ok = body[4].(string); !ok {
		return Payload{}, protocolf(op, "body has type %T", body[4])
	}
	if p.Actions, ok = body[5].([]string); !ok {
		return Payload{}, protocolf(op, "actions has type %T", body[5])
	}
	if p.Hints, ok = body[6].(map[string]dbus.Variant); !ok {
		return Payload{}, protocolf(op, "hints has type %T", body[6])
	}
	if p.ExpireTimeout, ok = body[7].(int32); !ok {
		return Payload{}, protocolf(op, "expire_timeout has type %T", body[7])
	}
	return p, nil
}

func checkText(field, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return invalidf(opBuild, "%s contains a NUL byte", field)
	}
	if !utf8.ValidString(s) {
		return invalidf(opBuild, "%s is not valid UTF-8", field)
	}
	return nil
}

// basicHintSignatures are the variant signatures a hint may carry.
var basicHintSignatures = map[string]bool{
	"y": true, "b": true, "n": true, "q": true, "i": true, "u": true,
	"x": true, "t": true, "d": true, "s": true, "ay": true,
}

// stringHints and boolHints are well-known hints with a fixed type.
var (
	stringHints = map[string]bool{
		"category": true, "desktop-entry": true, "image-path": true,
		"sound-file": true, "sound-name": true,
	}
	boolHints = map[string]bool{
		"action-icons": true, "resident": true, "suppress-sound": true, "transient": true,
	}
)

func hintVariant(key string, value any) (dbus.Variant, error) {
	if v, ok := value.(dbus.Variant); ok {
		if !basicHintSignatures[v.Signature().String()] {
			return dbus.Variant{}, invalidf(opBuild, "hint %q has unsupported type %s", key, v.Signature())
		}
		value = v.Value()
	}

	switch {
	case key == "urgency":
		n, ok := asInt64(value)
		if !ok {
			return dbus.Variant{}, invalidf(opBuild, "hint %q must be an integer, got %T", key, value)
		}
		if n < int64(UrgencyLow) || n > int64(UrgencyCritical) {
			return dbus.Variant{}, invalidf(opBuild, "hint %q must be 0, 1 or 2, got %d", key, n)
		}
		return dbus.MakeVariant(byte(n)), nil
	case stringHints[key]:
		s, ok := value.(string)
		if !ok {
			return dbus.Variant{}, invalidf(opBuild, "hint %q must be a string, got %T", key, value)
		}
		if err := checkText("hint "+key, s); err != nil {
			return dbus.Variant{}, err
		}
		return dbus.MakeVariant(s), nil
	case boolHints[key]:
		b, ok := value.(bool)
		if !ok {
			return dbus.Variant{}, invalidf(opBuild, "hint %q must be a bool, got %T", key, value)
		}
		return dbus.MakeVariant(b), nil
	}

	switch v := value.(type) {
	case byte, bool, int16, uint16, int32, uint32, int64, uint64, float64:
		return dbus.MakeVariant(v), nil
	case string:
		if err := checkText("hint "+key, v); err != nil {
			return dbus.Variant{}, err
		}
		return dbus.MakeVariant(v), nil
	case []byte:
		data := make([]byte, len(v))
		copy(data, v)
		return dbus.MakeVariant(data), nil
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return dbus.Variant{}, invalidf(opBuild, "hint %q value %d does not fit in int32", key, v)
		}
		return dbus.MakeVariant(int32(v)), nil
	default:
		return dbus.Variant{}, invalidf(opBuild, "hint %q has unsupported type %T", key, value)
	}
}

func asInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case byte:
		return int64(v), true
	case int16:
		return int64(v), true
	case uint16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the payload for logs.
func (p Payload) String() string {
	return fmt.Sprintf("Notify(%q, %d, %q, %q, %q, %q, %d hints, %d)",
		p.AppName, p.ReplacesID, p.AppIcon, p.Summary, p.Body, p.Actions, len(p.Hints), p.ExpireTimeout)
}
