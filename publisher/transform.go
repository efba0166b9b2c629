package publisher

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

func init() {
	RegisterTransformer("msgpack", func() Transformer { return MsgpackTransformer{} })
	RegisterTransformer("json", func() Transformer { return JSONTransformer{} })
}

// MsgpackTransformer encodes records as msgpack maps keyed by the msgpack tags
type MsgpackTransformer struct{}

func (MsgpackTransformer) Transform(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMsgpack decodes a record produced by MsgpackTransformer
func DecodeMsgpack(data []byte) (Record, error) {
	var rec Record
	err := msgpack.Unmarshal(data, &rec)
	return rec, err
}

// JSONTransformer encodes records as JSON objects
type JSONTransformer struct{}

func (JSONTransformer) Transform(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}
