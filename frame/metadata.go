package frame

import "fmt"

// readTypeKey reads a u16 type-key and, for list/set/map, its aux1 (and
// for map, aux2) type-keys, per spec.md §4.1's column-spec layout.
func readTypeKey(d *Decoder) (kind, aux1, aux2 Kind, err error) {
	raw, err := d.ReadUint16()
	if err != nil {
		return 0, 0, 0, err
	}
	tk := TypeKey(raw)
	k, ok := typeKeyToKind[tk]
	if !ok {
		return 0, 0, 0, fmt.Errorf("frame: unknown type key 0x%02x", tk)
	}
	switch tk {
	case TypeList, TypeSet:
		a1, _, _, err := readTypeKey(d)
		if err != nil {
			return 0, 0, 0, err
		}
		return k, a1, 0, nil
	case TypeMap:
		a1, _, _, err := readTypeKey(d)
		if err != nil {
			return 0, 0, 0, err
		}
		a2, _, _, err := readTypeKey(d)
		if err != nil {
			return 0, 0, 0, err
		}
		return k, a1, a2, nil
	default:
		return k, 0, 0, nil
	}
}

func writeTypeKey(e *Encoder, kind, aux1, aux2 Kind) error {
	tk, ok := kindToTypeKey[kind]
	if !ok {
		return fmt.Errorf("frame: unknown kind %d", kind)
	}
	e.WriteUint16(uint16(tk))
	switch tk {
	case TypeList, TypeSet:
		return writeTypeKey(e, aux1, 0, 0)
	case TypeMap:
		if err := writeTypeKey(e, aux1, 0, 0); err != nil {
			return err
		}
		return writeTypeKey(e, aux2, 0, 0)
	}
	return nil
}

// ReadMetadata parses the column-metadata block that precedes ROWS and
// (v>=2) PREPARED result bodies.
func ReadMetadata(d *Decoder) (Metadata, error) {
	flags, err := d.ReadUint32()
	if err != nil {
		return Metadata{}, err
	}
	colCount, err := d.ReadUint32()
	if err != nil {
		return Metadata{}, err
	}
	m := Metadata{Flags: flags}
	hasGlobal := flags&flagHasGlobalTableSpec != 0
	if hasGlobal {
		ks, err := d.ReadShortString()
		if err != nil {
			return Metadata{}, err
		}
		tbl, err := d.ReadShortString()
		if err != nil {
			return Metadata{}, err
		}
		m.GlobalKeyspace = ks
		m.GlobalTable = tbl
	}
	m.Columns = make([]ColumnSpec, 0, colCount)
	for i := uint32(0); i < colCount; i++ {
		var cs ColumnSpec
		if !hasGlobal {
			ks, err := d.ReadShortString()
			if err != nil {
				return Metadata{}, err
			}
			tbl, err := d.ReadShortString()
			if err != nil {
				return Metadata{}, err
			}
			cs.Keyspace, cs.Table = ks, tbl
		} else {
			cs.Keyspace, cs.Table = m.GlobalKeyspace, m.GlobalTable
		}
		name, err := d.ReadShortString()
		if err != nil {
			return Metadata{}, err
		}
		cs.Name = name
		kind, aux1, aux2, err := readTypeKey(d)
		if err != nil {
			return Metadata{}, err
		}
		cs.Type, cs.Aux1, cs.Aux2 = kind, aux1, aux2
		m.Columns = append(m.Columns, cs)
	}
	return m, nil
}

// WriteMetadata is the inverse of ReadMetadata, used by the scripted
// test server and by any future server-side component exercising the
// codec symmetrically.
func WriteMetadata(e *Encoder, m Metadata) error {
	e.WriteUint32(m.Flags)
	e.WriteUint32(uint32(len(m.Columns)))
	hasGlobal := m.hasGlobalSpec()
	if hasGlobal {
		e.WriteShortString(m.GlobalKeyspace)
		e.WriteShortString(m.GlobalTable)
	}
	for _, cs := range m.Columns {
		if !hasGlobal {
			e.WriteShortString(cs.Keyspace)
			e.WriteShortString(cs.Table)
		}
		e.WriteShortString(cs.Name)
		if err := writeTypeKey(e, cs.Type, cs.Aux1, cs.Aux2); err != nil {
			return err
		}
	}
	return nil
}
