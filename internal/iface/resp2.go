package iface

import (
	"encoding/json"

	"github.com/tidwall/redcon"
)

type RespRegister interface {
	AddCommandHandler(command string, h RespCommandHandler)
}

type RespResult func(conn redcon.Conn) error

type RespArg []byte

type RespCommandHandler func(args []RespArg) (RespResult, error)

func RespErrorResult(msg string) RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteError(msg)
		return nil
	}
}

func RespNilResult() RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteNull()
		return nil
	}
}

func RespOKResult() RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteString("OK")
		return nil
	}
}

func RespValueResult(val []byte) RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteBulk(val)
		return nil
	}
}

func RespStringResult(msg string) RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteString(msg)
		return nil
	}
}

// RespSequenceResult replies a sequence number as a RESP integer.
func RespSequenceResult(seq uint64) RespResult {
	return func(conn redcon.Conn) error {
		conn.WriteUint64(seq)
		return nil
	}
}

// RespJsonResult replies the json encoding of object as a bulk string.
func RespJsonResult(object any) RespResult {
	return func(conn redcon.Conn) error {
		data, err := json.Marshal(object)
		if err != nil {
			return err
		}
		conn.WriteBulk(data)
		return nil
	}
}
