package writeback

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/rzpsarthak13/starphoenix/internal/core"
)

// Codec serializes write operations for queues that leave the process.
type Codec interface {
	// Name is the identifier used in configuration.
	Name() string
	Marshal(op *core.WriteOperation) ([]byte, error)
	Unmarshal(data []byte) (*core.WriteOperation, error)
}

// JSONCodec encodes operations as JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(op *core.WriteOperation) ([]byte, error) {
	return json.Marshal(op)
}

// Unmarshal decodes numeric keys as json.Number so large keys stay exact.
func (JSONCodec) Unmarshal(data []byte) (*core.WriteOperation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var op core.WriteOperation
	if err := dec.Decode(&op); err != nil {
		return nil, err
	}
	return &op, nil
}

// MsgpackCodec encodes operations as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Marshal(op *core.WriteOperation) ([]byte, error) {
	return msgpack.Marshal(op)
}

func (MsgpackCodec) Unmarshal(data []byte) (*core.WriteOperation, error) {
	var op core.WriteOperation
	if err := msgpack.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// NewCodec returns the codec registered under name. An empty name selects JSON.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported write-back codec: %s", name)
	}
}
