package frame

import "fmt"

// RowsResult is the ROWS result-set sub-body: column metadata plus the
// row-count-many rows of column-count-many values each.
type RowsResult struct {
	Metadata Metadata
	Rows     [][]Value
}

// PreparedResult is the PREPARED result sub-body: the server-issued
// opaque id, the bind-argument metadata, and (v>=2) the result-set
// metadata describing what EXECUTE will eventually return.
type PreparedResult struct {
	ID             []byte
	ArgMetadata    Metadata
	ResultMetadata *Metadata // nil on v1, where only arg metadata is sent
}

// SchemaChangeResult is the SCHEMA_CHANGE result sub-body (distinct
// from the SCHEMA_CHANGE *event*, which is pushed unsolicited; this one
// is the direct response to a DDL statement).
type SchemaChangeResult struct {
	Change      string
	Keyspace    string
	TableOrType string
}

// ResultResponse is the RESULT response body. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type ResultResponse struct {
	Kind         ResultKind
	Keyspace     string // SET_KEYSPACE
	Rows         *RowsResult
	Prepared     *PreparedResult
	SchemaChange *SchemaChangeResult
}

func (ResultResponse) Opcode() Opcode { return OpResult }

func decodeResult(d *Decoder, version uint8) (ResultResponse, error) {
	kindRaw, err := d.ReadUint32()
	if err != nil {
		return ResultResponse{}, err
	}
	kind := ResultKind(kindRaw)
	res := ResultResponse{Kind: kind}
	switch kind {
	case ResultVoid:
		return res, nil
	case ResultSetKeyspace:
		ks, err := d.ReadShortString()
		if err != nil {
			return ResultResponse{}, err
		}
		res.Keyspace = ks
		return res, nil
	case ResultRows:
		rr, err := decodeRowsResult(d, version)
		if err != nil {
			return ResultResponse{}, err
		}
		res.Rows = &rr
		return res, nil
	case ResultPrepared:
		pr, err := decodePreparedResult(d, version)
		if err != nil {
			return ResultResponse{}, err
		}
		res.Prepared = &pr
		return res, nil
	case ResultSchemaChange:
		sc, err := decodeSchemaChangeResult(d)
		if err != nil {
			return ResultResponse{}, err
		}
		res.SchemaChange = &sc
		return res, nil
	default:
		return ResultResponse{}, fmt.Errorf("frame: unknown result kind %d", kind)
	}
}

func decodeRowsResult(d *Decoder, version uint8) (RowsResult, error) {
	meta, err := ReadMetadata(d)
	if err != nil {
		return RowsResult{}, err
	}
	rowCount, err := d.ReadUint32()
	if err != nil {
		return RowsResult{}, err
	}
	rows := make([][]Value, rowCount)
	for r := range rows {
		row := make([]Value, len(meta.Columns))
		for c, cs := range meta.Columns {
			v, err := DecodeTopLevelValue(d, cs.Type, cs.Aux1, cs.Aux2, version)
			if err != nil {
				return RowsResult{}, err
			}
			row[c] = v
		}
		rows[r] = row
	}
	return RowsResult{Metadata: meta, Rows: rows}, nil
}

func decodePreparedResult(d *Decoder, version uint8) (PreparedResult, error) {
	id, err := d.ReadShortBytes()
	if err != nil {
		return PreparedResult{}, err
	}
	argMeta, err := ReadMetadata(d)
	if err != nil {
		return PreparedResult{}, err
	}
	pr := PreparedResult{ID: id, ArgMetadata: argMeta}
	if version >= ProtocolV2 {
		resMeta, err := ReadMetadata(d)
		if err != nil {
			return PreparedResult{}, err
		}
		pr.ResultMetadata = &resMeta
	}
	return pr, nil
}

func decodeSchemaChangeResult(d *Decoder) (SchemaChangeResult, error) {
	change, err := d.ReadShortString()
	if err != nil {
		return SchemaChangeResult{}, err
	}
	ks, err := d.ReadShortString()
	if err != nil {
		return SchemaChangeResult{}, err
	}
	tbl, err := d.ReadShortString()
	if err != nil {
		return SchemaChangeResult{}, err
	}
	return SchemaChangeResult{Change: change, Keyspace: ks, TableOrType: tbl}, nil
}

// EncodeResult is the inverse of decodeResult, used by the scripted
// test server to produce RESULT bodies to feed the real decoder.
func EncodeResult(res ResultResponse, version uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteUint32(uint32(res.Kind))
	switch res.Kind {
	case ResultVoid:
	case ResultSetKeyspace:
		e.WriteShortString(res.Keyspace)
	case ResultRows:
		if err := WriteMetadata(e, res.Rows.Metadata); err != nil {
			return nil, err
		}
		e.WriteUint32(uint32(len(res.Rows.Rows)))
		for _, row := range res.Rows.Rows {
			for _, v := range row {
				enc, err := EncodeTopLevelValue(v, version)
				if err != nil {
					return nil, err
				}
				e.WriteRaw(enc)
			}
		}
	case ResultPrepared:
		e.WriteShortBytes(res.Prepared.ID)
		if err := WriteMetadata(e, res.Prepared.ArgMetadata); err != nil {
			return nil, err
		}
		if version >= ProtocolV2 {
			rm := Metadata{}
			if res.Prepared.ResultMetadata != nil {
				rm = *res.Prepared.ResultMetadata
			}
			if err := WriteMetadata(e, rm); err != nil {
				return nil, err
			}
		}
	case ResultSchemaChange:
		e.WriteShortString(res.SchemaChange.Change)
		e.WriteShortString(res.SchemaChange.Keyspace)
		e.WriteShortString(res.SchemaChange.TableOrType)
	default:
		return nil, fmt.Errorf("frame: unknown result kind %d", res.Kind)
	}
	return e.Bytes(), nil
}
