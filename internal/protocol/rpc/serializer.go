package rpc

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-muddle/pkg/types"
)

// 值类型，编码为 protowire 字段号
const (
	typeBytes   protowire.Number = 1
	typeString  protowire.Number = 2
	typeUint64  protowire.Number = 3
	typeInt64   protowire.Number = 4
	typeBool    protowire.Number = 5
	typeAddress protowire.Number = 6
)

func typeName(n protowire.Number) string {
	switch n {
	case typeBytes:
		return "bytes"
	case typeString:
		return "string"
	case typeUint64:
		return "uint64"
	case typeInt64:
		return "int64"
	case typeBool:
		return "bool"
	case typeAddress:
		return "address"
	default:
		return fmt.Sprintf("type(%d)", n)
	}
}

// Encoder 按顺序写入带类型标记的值
//
// 每个值是一个 protowire 字段，字段号表示值类型，解码端按同样顺序读取。
type Encoder struct {
	buf []byte
}

// NewEncoder 创建编码器
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes 写入字节串
func (e *Encoder) Bytes(v []byte) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeBytes, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v)
	return e
}

// Text 写入字符串
func (e *Encoder) Text(v string) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeString, protowire.BytesType)
	e.buf = protowire.AppendString(e.buf, v)
	return e
}

// Uint64 写入无符号整数
func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeUint64, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, v)
	return e
}

// Int64 写入有符号整数（zigzag）
func (e *Encoder) Int64(v int64) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeInt64, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeZigZag(v))
	return e
}

// Bool 写入布尔值
func (e *Encoder) Bool(v bool) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeBool, protowire.VarintType)
	e.buf = protowire.AppendVarint(e.buf, protowire.EncodeBool(v))
	return e
}

// Address 写入节点地址
func (e *Encoder) Address(v types.Address) *Encoder {
	e.buf = protowire.AppendTag(e.buf, typeAddress, protowire.BytesType)
	e.buf = protowire.AppendBytes(e.buf, v[:])
	return e
}

// Raw 追加已编码的值序列
func (e *Encoder) Raw(encoded []byte) *Encoder {
	e.buf = append(e.buf, encoded...)
	return e
}

// Encoded 返回已编码的数据
func (e *Encoder) Encoded() []byte {
	return e.buf
}

// Size 已编码字节数
func (e *Encoder) Size() int {
	return len(e.buf)
}

// Decoder 按顺序读取 Encoder 写入的值
//
// 类型不符或数据截断时返回错误，且不前进读位置。
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder 创建解码器
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Consumed 已读取的字节数
func (d *Decoder) Consumed() int {
	return d.off
}

// Remaining 未读取的字节数
func (d *Decoder) Remaining() int {
	return len(d.data) - d.off
}

// Rest 返回未读取的数据
func (d *Decoder) Rest() []byte {
	return d.data[d.off:]
}

// header 读取字段头并校验类型，返回头部长度
func (d *Decoder) header(want protowire.Number, wt protowire.Type) (int, error) {
	if d.Remaining() == 0 {
		return 0, fmt.Errorf("%w: want %s, no data left", ErrTruncated, typeName(want))
	}
	num, typ, n := protowire.ConsumeTag(d.data[d.off:])
	if n < 0 {
		return 0, fmt.Errorf("%w: tag: %v", ErrTruncated, protowire.ParseError(n))
	}
	if num != want || typ != wt {
		return 0, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, typeName(want), typeName(num))
	}
	return n, nil
}

func (d *Decoder) bytesValue(want protowire.Number) ([]byte, error) {
	hn, err := d.header(want, protowire.BytesType)
	if err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(d.data[d.off+hn:])
	if n < 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrTruncated, typeName(want), protowire.ParseError(n))
	}
	d.off += hn + n
	return v, nil
}

func (d *Decoder) varintValue(want protowire.Number) (uint64, error) {
	hn, err := d.header(want, protowire.VarintType)
	if err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(d.data[d.off+hn:])
	if n < 0 {
		return 0, fmt.Errorf("%w: %s: %v", ErrTruncated, typeName(want), protowire.ParseError(n))
	}
	d.off += hn + n
	return v, nil
}

// Bytes 读取字节串，返回值引用底层数据
func (d *Decoder) Bytes() ([]byte, error) {
	return d.bytesValue(typeBytes)
}

// Text 读取字符串
func (d *Decoder) Text() (string, error) {
	v, err := d.bytesValue(typeString)
	return string(v), err
}

// Uint64 读取无符号整数
func (d *Decoder) Uint64() (uint64, error) {
	return d.varintValue(typeUint64)
}

// Int64 读取有符号整数
func (d *Decoder) Int64() (int64, error) {
	v, err := d.varintValue(typeInt64)
	return protowire.DecodeZigZag(v), err
}

// Bool 读取布尔值
func (d *Decoder) Bool() (bool, error) {
	v, err := d.varintValue(typeBool)
	return protowire.DecodeBool(v), err
}

// Address 读取节点地址
func (d *Decoder) Address() (types.Address, error) {
	start := d.off
	v, err := d.bytesValue(typeAddress)
	if err != nil {
		return types.ZeroAddress, err
	}
	addr, err := types.AddressFromBytes(v)
	if err != nil {
		d.off = start
		return types.ZeroAddress, err
	}
	return addr, nil
}
