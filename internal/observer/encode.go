package observer

import (
	"fmt"
	"reflect"

	"github.com/signalsfoundry/amoebot-simulator/core"
	"github.com/signalsfoundry/amoebot-simulator/model"
	"google.golang.org/protobuf/types/known/structpb"
)

// SnapshotToStruct renders a committed round as a protobuf Struct. Field
// names are snake_case; nodes are [x, y] pairs.
func SnapshotToStruct(snap *core.RoundSnapshot) (*structpb.Struct, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrInvalidRequest)
	}

	amoebots := make([]any, 0, len(snap.Amoebots))
	for _, a := range snap.Amoebots {
		amoebots = append(amoebots, amoebotFields(a))
	}

	bonds := make([]any, 0, len(snap.Bonds))
	for _, b := range snap.Bonds {
		bonds = append(bonds, map[string]any{
			"a":      int64(b.A),
			"b":      int64(b.B),
			"node_a": node(b.NodeA),
			"node_b": node(b.NodeB),
		})
	}

	circuits := 0
	if snap.Circuits != nil {
		circuits = snap.Circuits.NumCircuits()
	}

	return structpb.NewStruct(map[string]any{
		"round":    int64(snap.Round),
		"amoebots": amoebots,
		"bonds":    bonds,
		"circuits": int64(circuits),
		"stats":    statsFields(snap.Stats),
	})
}

// RangeToStruct renders the stored history range.
func RangeToStruct(earliest, latest, cursor int, atLatest bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"earliest":  structpb.NewNumberValue(float64(earliest)),
		"latest":    structpb.NewNumberValue(float64(latest)),
		"cursor":    structpb.NewNumberValue(float64(cursor)),
		"at_latest": structpb.NewBoolValue(atLatest),
	}}
}

func amoebotFields(a core.AmoebotSnapshot) map[string]any {
	fields := map[string]any{
		"id":             int64(a.ID),
		"head":           node(a.Head),
		"tail":           node(a.Tail),
		"expanded":       a.Expanded(),
		"chirality":      a.Chirality.String(),
		"compass":        int64(a.Compass),
		"beeps_sent":     bools(a.BeepsSent),
		"beeps_received": bools(a.BeepsReceived),
		"movement": map[string]any{
			"requested": a.Movement.Requested.Kind.String(),
			"performed": a.Movement.Performed.Kind.String(),
			"outcome":   a.Movement.Outcome.String(),
			"reason":    string(a.Movement.Reason),
		},
	}
	if a.Pins != nil {
		sets := make([]any, 0, a.Pins.NumSets())
		for _, set := range a.Pins.Sets() {
			pins := make([]any, len(set))
			for i, p := range set {
				pins[i] = int64(p)
			}
			sets = append(sets, pins)
		}
		fields["partition_sets"] = sets
	}
	if len(a.AttributeNames) > 0 {
		attrs := make(map[string]any, len(a.AttributeNames))
		for i, name := range a.AttributeNames {
			attrs[name] = plainValue(a.Attributes[i])
		}
		fields["attributes"] = attrs
	}
	return fields
}

func statsFields(s core.RoundStats) map[string]any {
	return map[string]any{
		"amoebots":         int64(s.Amoebots),
		"occupied_nodes":   int64(s.OccupiedNodes),
		"circuits":         int64(s.Circuits),
		"beeps_sent":       int64(s.BeepsSent),
		"beeps_delivered":  int64(s.BeepsDelivered),
		"beeps_dropped":    int64(s.BeepsDropped),
		"moves_applied":    int64(s.MovesApplied),
		"moves_rejected":   int64(s.MovesRejected),
		"duration_seconds": s.Duration.Seconds(),
	}
}

func node(n model.Node) []any { return []any{int64(n.X), int64(n.Y)} }

func bools(bs []bool) []any {
	out := make([]any, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

// plainValue reduces attribute values of named types to the basic kinds
// structpb accepts; anything else is rendered with fmt.
func plainValue(v any) any {
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Invalid:
		return nil
	}
	return fmt.Sprint(v)
}
