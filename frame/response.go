package frame

import "fmt"

// Response is satisfied by every response-side decoded body.
type Response interface {
	Opcode() Opcode
}

type ErrorResponse struct {
	Code    uint32
	Message string
}

func (ErrorResponse) Opcode() Opcode { return OpError }

type ReadyResponse struct{}

func (ReadyResponse) Opcode() Opcode { return OpReady }

type AuthenticateResponse struct {
	ClassName string
}

func (AuthenticateResponse) Opcode() Opcode { return OpAuthenticate }

type SupportedResponse struct {
	Options map[string][]string
}

func (SupportedResponse) Opcode() Opcode { return OpSupported }

type AuthChallengeResponse struct {
	Token []byte
}

func (AuthChallengeResponse) Opcode() Opcode { return OpAuthChallenge }

type AuthSuccessResponse struct {
	Token []byte
}

func (AuthSuccessResponse) Opcode() Opcode { return OpAuthSuccess }

// DecodeResponse parses a frame's body according to its header opcode.
// EVENT frames decode via DecodeEvent instead, since they carry no
// stream correlation and are routed separately by the caller (conn
// forwards stream==-1/opcode==EVENT frames to the event handler before
// ever calling DecodeResponse).
func DecodeResponse(fr *Frame, version uint8) (Response, error) {
	d := NewDecoder(fr.Body)
	switch fr.Header.Opcode {
	case OpError:
		code, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		msg, err := d.ReadShortString()
		if err != nil {
			return nil, err
		}
		return ErrorResponse{Code: code, Message: msg}, nil
	case OpReady:
		return ReadyResponse{}, nil
	case OpAuthenticate:
		class, err := d.ReadShortString()
		if err != nil {
			return nil, err
		}
		return AuthenticateResponse{ClassName: class}, nil
	case OpSupported:
		n, err := d.ReadUint16()
		if err != nil {
			return nil, err
		}
		opts := make(map[string][]string, n)
		for i := 0; i < int(n); i++ {
			k, err := d.ReadShortString()
			if err != nil {
				return nil, err
			}
			vs, err := d.ReadStringList()
			if err != nil {
				return nil, err
			}
			opts[k] = vs
		}
		return SupportedResponse{Options: opts}, nil
	case OpAuthChallenge:
		tok, _, err := d.ReadLongBytes()
		if err != nil {
			return nil, err
		}
		return AuthChallengeResponse{Token: tok}, nil
	case OpAuthSuccess:
		tok, _, err := d.ReadLongBytes()
		if err != nil {
			return nil, err
		}
		return AuthSuccessResponse{Token: tok}, nil
	case OpResult:
		return decodeResult(d, version)
	default:
		return nil, fmt.Errorf("frame: unknown response opcode %s", fr.Header.Opcode)
	}
}
