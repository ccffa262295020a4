package frame

import (
	"fmt"
	"net"
)

// TopologyChangeEvent is pushed when a node joins, leaves, or moves.
type TopologyChangeEvent struct {
	ChangeType TopologyChangeType
	Address    net.IP
}

// StatusChangeEvent is pushed when a node transitions up or down.
type StatusChangeEvent struct {
	ChangeType StatusChangeType
	Address    net.IP
}

// SchemaChangeEvent is pushed on DDL; unlike SchemaChangeResult (a
// direct response to the statement that caused it), this arrives
// unsolicited on any REGISTERed connection.
type SchemaChangeEvent struct {
	ChangeType SchemaChangeType
	Target     SchemaChangeTarget
	Keyspace   string
	Name       string // table or type name; empty when Target is KEYSPACE
}

// Event is the decoded body of a server-pushed EVENT frame (stream
// -1).
type Event struct {
	Type     EventType
	Topology *TopologyChangeEvent
	Status   *StatusChangeEvent
	Schema   *SchemaChangeEvent
}

// DecodeEvent parses an EVENT frame's body.
func DecodeEvent(fr *Frame) (Event, error) {
	d := NewDecoder(fr.Body)
	typ, err := d.ReadShortString()
	if err != nil {
		return Event{}, err
	}
	ev := Event{Type: EventType(typ)}
	switch ev.Type {
	case EventTopologyChange:
		ct, err := d.ReadShortString()
		if err != nil {
			return Event{}, err
		}
		addr, err := d.ReadInetAddr()
		if err != nil {
			return Event{}, err
		}
		ev.Topology = &TopologyChangeEvent{ChangeType: TopologyChangeType(ct), Address: addr}
	case EventStatusChange:
		ct, err := d.ReadShortString()
		if err != nil {
			return Event{}, err
		}
		addr, err := d.ReadInetAddr()
		if err != nil {
			return Event{}, err
		}
		ev.Status = &StatusChangeEvent{ChangeType: StatusChangeType(ct), Address: addr}
	case EventSchemaChange:
		ct, err := d.ReadShortString()
		if err != nil {
			return Event{}, err
		}
		target, err := d.ReadShortString()
		if err != nil {
			return Event{}, err
		}
		ks, err := d.ReadShortString()
		if err != nil {
			return Event{}, err
		}
		sc := &SchemaChangeEvent{ChangeType: SchemaChangeType(ct), Target: SchemaChangeTarget(target), Keyspace: ks}
		if SchemaChangeTarget(target) != SchemaTargetKeyspace && d.Len() > 0 {
			name, err := d.ReadShortString()
			if err != nil {
				return Event{}, err
			}
			sc.Name = name
		}
		ev.Schema = sc
	default:
		return Event{}, fmt.Errorf("frame: unknown event type %q", typ)
	}
	return ev, nil
}

// EncodeEvent is the inverse of DecodeEvent, used by the scripted test
// server to produce EVENT bodies.
func EncodeEvent(ev Event) ([]byte, error) {
	e := NewEncoder()
	e.WriteShortString(string(ev.Type))
	switch ev.Type {
	case EventTopologyChange:
		e.WriteShortString(string(ev.Topology.ChangeType))
		e.WriteInetAddr(ev.Topology.Address)
	case EventStatusChange:
		e.WriteShortString(string(ev.Status.ChangeType))
		e.WriteInetAddr(ev.Status.Address)
	case EventSchemaChange:
		e.WriteShortString(string(ev.Schema.ChangeType))
		e.WriteShortString(string(ev.Schema.Target))
		e.WriteShortString(ev.Schema.Keyspace)
		if ev.Schema.Target != SchemaTargetKeyspace {
			e.WriteShortString(ev.Schema.Name)
		}
	default:
		return nil, fmt.Errorf("frame: unknown event type %q", ev.Type)
	}
	return e.Bytes(), nil
}
