package frame

// Request is satisfied by every request-side body type. Encode returns
// the opcode-specific body bytes (no frame header); the caller (conn)
// wraps it with WriteFrame once a stream id has been assigned. Encode
// fails only when a bound Value can't be represented on the wire
// (cqlerr.ErrUnsupportedValue for Decimal/Varint).
type Request interface {
	Opcode() Opcode
	Encode(version uint8) ([]byte, error)
}

// StartupRequest is the STARTUP body: a string map, conventionally
// {"CQL_VERSION": "3.0.0"}.
type StartupRequest struct {
	Options map[string]string
}

func (StartupRequest) Opcode() Opcode { return OpStartup }

func (r StartupRequest) Encode(uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteStringMap(r.Options)
	return e.Bytes(), nil
}

// NewStartupRequest builds the standard STARTUP body advertised by
// every handshake attempt (spec.md §3 lifecycles).
func NewStartupRequest() StartupRequest {
	return StartupRequest{Options: map[string]string{"CQL_VERSION": "3.0.0"}}
}

// OptionsRequest is the empty-bodied OPTIONS request.
type OptionsRequest struct{}

func (OptionsRequest) Opcode() Opcode                  { return OpOptions }
func (OptionsRequest) Encode(uint8) ([]byte, error) { return nil, nil }

// QueryRequest is a simple (non-prepared) query. Flags is only written
// for protocol v2+; query-string composition itself is out of scope —
// Query is passed through opaquely.
type QueryRequest struct {
	Query       string
	Consistency Consistency
	Flags       uint8
}

func (QueryRequest) Opcode() Opcode { return OpQuery }

func (r QueryRequest) Encode(version uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteLongString(r.Query)
	e.WriteConsistency(r.Consistency)
	if version >= ProtocolV2 {
		e.WriteByte(r.Flags)
	}
	return e.Bytes(), nil
}

// PrepareRequest is the PREPARE body: a long-string query.
type PrepareRequest struct {
	Query string
}

func (PrepareRequest) Opcode() Opcode { return OpPrepare }

func (r PrepareRequest) Encode(uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteLongString(r.Query)
	return e.Bytes(), nil
}

// ExecuteRequest runs a previously PREPAREd statement. Body layout
// differs by version: v1 puts Consistency last; v2+ puts it first and
// adds a flags byte (spec.md §4.1).
type ExecuteRequest struct {
	PreparedID  []byte
	Values      []Value
	Consistency Consistency
	Flags       uint8
}

func (ExecuteRequest) Opcode() Opcode { return OpExecute }

func (r ExecuteRequest) Encode(version uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteShortBytes(r.PreparedID)
	if version >= ProtocolV2 {
		e.WriteConsistency(r.Consistency)
		e.WriteByte(r.Flags)
		if err := writeValues(e, r.Values, version); err != nil {
			return nil, err
		}
		return e.Bytes(), nil
	}
	if err := writeValues(e, r.Values, version); err != nil {
		return nil, err
	}
	e.WriteConsistency(r.Consistency)
	return e.Bytes(), nil
}

// writeValues writes an i16 count followed by that many top-level
// (4-byte-length-prefixed) values, per spec.md's EXECUTE/BATCH layout.
// It fails fast on the first value EncodeTopLevelValue rejects, rather
// than silently substituting NULL, so a caller binding an unsupported
// kind sees the request fail instead of being corrupted.
func writeValues(e *Encoder, values []Value, version uint8) error {
	e.WriteUint16(uint16(len(values)))
	for _, v := range values {
		enc, err := EncodeTopLevelValue(v, version)
		if err != nil {
			return err
		}
		e.WriteRaw(enc)
	}
	return nil
}

// BatchSubQuery is one entry of a BATCH request: either a bare query
// string (kind 0) or a prepared-statement id with bound values (kind
// 1), per spec.md §4.1.
type BatchSubQuery struct {
	Prepared   bool
	Query      string
	PreparedID []byte
	Values     []Value
}

func (q BatchSubQuery) encode(e *Encoder, version uint8) error {
	if !q.Prepared {
		e.WriteByte(0)
		e.WriteLongString(q.Query)
		e.WriteUint16(0)
		return nil
	}
	e.WriteByte(1)
	e.WriteShortBytes(q.PreparedID)
	return writeValues(e, q.Values, version)
}

// BatchRequest groups multiple queries/executes for atomic (or
// unlogged) application.
type BatchRequest struct {
	Type        BatchType
	Queries     []BatchSubQuery
	Consistency Consistency
	Flags       uint8 // v3+
}

func (BatchRequest) Opcode() Opcode { return OpBatch }

func (r BatchRequest) Encode(version uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteByte(byte(r.Type))
	e.WriteUint16(uint16(len(r.Queries)))
	for _, q := range r.Queries {
		if err := q.encode(e, version); err != nil {
			return nil, err
		}
	}
	e.WriteConsistency(r.Consistency)
	if version >= ProtocolV3 {
		e.WriteByte(r.Flags)
	}
	return e.Bytes(), nil
}

// RegisterRequest subscribes the connection to the named event types.
type RegisterRequest struct {
	EventTypes []string
}

func (RegisterRequest) Opcode() Opcode { return OpRegister }

func (r RegisterRequest) Encode(uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteStringList(r.EventTypes)
	return e.Bytes(), nil
}

// AuthResponseRequest carries the client's answer to an AUTHENTICATE or
// AUTH_CHALLENGE frame.
type AuthResponseRequest struct {
	Token []byte
}

func (AuthResponseRequest) Opcode() Opcode { return OpAuthResponse }

func (r AuthResponseRequest) Encode(uint8) ([]byte, error) {
	e := NewEncoder()
	e.WriteLongBytes(r.Token, true)
	return e.Bytes(), nil
}

// PasswordAuthToken builds the AUTH_RESPONSE token for the approved
// PasswordAuthenticator class: 0x00 user 0x00 password, per spec.md
// §4.2 and the "Auth challenge" testable property in §8.
func PasswordAuthToken(user, password string) []byte {
	tok := make([]byte, 0, len(user)+len(password)+2)
	tok = append(tok, 0)
	tok = append(tok, user...)
	tok = append(tok, 0)
	tok = append(tok, password...)
	return tok
}
