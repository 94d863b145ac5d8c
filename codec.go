package serial

import (
	"context"
	"math"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
)

// encode writes v's fields in the descriptor's field order, which is the
// wire contract. Cancellation is cooperative: the context is observed at
// field boundaries, never mid-field.
func encode(ctx context.Context, w *writeCursor, d *TypeDescriptor, v reflect.Value) error {
	for i := range d.Fields {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := &d.Fields[i]
		fv := v.Field(f.index)
		if f.Nullable {
			if fv.IsNil() {
				w.writeByte(0)
				continue
			}
			w.writeByte(1)
			fv = fv.Elem()
		}
		if err := encodeField(ctx, w, f, fv); err != nil {
			return err
		}
	}
	return w.err
}

func encodeField(ctx context.Context, w *writeCursor, f *FieldDescriptor, fv reflect.Value) error {
	if f.Kind != KindSlice {
		return encodeKind(ctx, w, f.Kind, f.Elem, fv)
	}

	n := fv.Len()
	if !fitsLenPrefix(n) {
		return errors.Wrapf(ErrEncoding, "field %q: %d elements overflow the count prefix", f.Name, n)
	}
	w.writeUint32(uint32(n))
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := encodeKind(ctx, w, f.ElemKind, f.Elem, fv.Index(i)); err != nil {
			return err
		}
	}
	return w.err
}

func encodeKind(ctx context.Context, w *writeCursor, k Kind, elem *TypeDescriptor, fv reflect.Value) error {
	switch k {
	case KindBool:
		if fv.Bool() {
			w.writeByte(1)
		} else {
			w.writeByte(0)
		}
	case KindInt8:
		w.writeByte(byte(fv.Int()))
	case KindInt16:
		w.writeUint16(uint16(fv.Int()))
	case KindInt32:
		w.writeUint32(uint32(fv.Int()))
	case KindInt64:
		w.writeUint64(uint64(fv.Int()))
	case KindUint8:
		w.writeByte(byte(fv.Uint()))
	case KindUint16:
		w.writeUint16(uint16(fv.Uint()))
	case KindUint32:
		w.writeUint32(uint32(fv.Uint()))
	case KindUint64:
		w.writeUint64(fv.Uint())
	case KindFloat32:
		w.writeUint32(math.Float32bits(float32(fv.Float())))
	case KindFloat64:
		w.writeUint64(math.Float64bits(fv.Float()))
	case KindTime:
		w.writeUint64(uint64(fv.Interface().(time.Time).UnixNano()))
	case KindString:
		s := fv.String()
		if !fitsLenPrefix(len(s)) {
			return errors.Wrapf(ErrEncoding, "string length %d overflows the length prefix", len(s))
		}
		w.writeUint32(uint32(len(s)))
		w.writeString(s)
	case KindBytes:
		b := fv.Bytes()
		if !fitsLenPrefix(len(b)) {
			return errors.Wrapf(ErrEncoding, "byte length %d overflows the length prefix", len(b))
		}
		w.writeUint32(uint32(len(b)))
		w.writeBytes(b)
	case KindStruct:
		// Length-prefixed so forward-compatible readers can skip the
		// whole value without knowing its shape.
		pos := w.pos()
		w.writeUint32(0)
		if err := encode(ctx, w, elem, fv); err != nil {
			return err
		}
		w.patchUint32(pos, uint32(w.pos()-pos-lenPrefixSize))
	default:
		return errors.Wrapf(ErrEncoding, "unencodable kind %s", k)
	}
	return w.err
}

// decode reads a payload written with the writer descriptor into a value
// of the reader descriptor's type. The two descriptors are either the same
// or additively compatible: the common field prefix decodes, extra writer
// fields are skipped by their encoded length, and extra reader fields keep
// their zero values.
func decode(ctx context.Context, r *readCursor, writer, reader *TypeDescriptor, v reflect.Value) error {
	common := len(writer.Fields)
	if len(reader.Fields) < common {
		common = len(reader.Fields)
	}

	for i := 0; i < common; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		wf, rf := &writer.Fields[i], &reader.Fields[i]
		fv := v.Field(rf.index)
		if wf.Nullable {
			present := r.readByte()
			if r.err != nil {
				return r.err
			}
			if present == 0 {
				fv.SetZero()
				continue
			}
			fv.Set(reflect.New(fv.Type().Elem()))
			fv = fv.Elem()
		}
		if err := decodeField(ctx, r, wf, rf, fv); err != nil {
			return err
		}
	}

	for i := common; i < len(writer.Fields); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		skipField(r, &writer.Fields[i])
		if r.err != nil {
			return r.err
		}
	}
	return r.err
}

func decodeField(ctx context.Context, r *readCursor, wf, rf *FieldDescriptor, fv reflect.Value) error {
	if wf.Kind != KindSlice {
		return decodeKind(ctx, r, wf.Kind, wf.Elem, rf.Elem, fv)
	}

	n := r.readLen()
	if r.err != nil {
		return r.err
	}
	if n == 0 {
		fv.SetZero()
		return nil
	}
	sl := reflect.MakeSlice(fv.Type(), n, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := decodeKind(ctx, r, wf.ElemKind, wf.Elem, rf.Elem, sl.Index(i)); err != nil {
			return err
		}
	}
	fv.Set(sl)
	return r.err
}

func decodeKind(ctx context.Context, r *readCursor, k Kind, welem, relem *TypeDescriptor, fv reflect.Value) error {
	switch k {
	case KindBool:
		fv.SetBool(r.readByte() != 0)
	case KindInt8:
		fv.SetInt(int64(int8(r.readByte())))
	case KindInt16:
		fv.SetInt(int64(int16(r.readUint16())))
	case KindInt32:
		fv.SetInt(int64(int32(r.readUint32())))
	case KindInt64:
		fv.SetInt(int64(r.readUint64()))
	case KindUint8:
		fv.SetUint(uint64(r.readByte()))
	case KindUint16:
		fv.SetUint(uint64(r.readUint16()))
	case KindUint32:
		fv.SetUint(uint64(r.readUint32()))
	case KindUint64:
		fv.SetUint(r.readUint64())
	case KindFloat32:
		fv.SetFloat(float64(math.Float32frombits(r.readUint32())))
	case KindFloat64:
		fv.SetFloat(math.Float64frombits(r.readUint64()))
	case KindTime:
		ns := int64(r.readUint64())
		if r.err == nil {
			fv.Set(reflect.ValueOf(time.Unix(0, ns).UTC()))
		}
	case KindString:
		n := r.readLen()
		if r.err == nil {
			fv.SetString(string(r.readBytes(n)))
		}
	case KindBytes:
		n := r.readLen()
		if r.err != nil {
			return r.err
		}
		if n == 0 {
			fv.SetZero()
			break
		}
		out := make([]byte, n)
		copy(out, r.readBytes(n))
		fv.SetBytes(out)
	case KindStruct:
		n := r.readLen()
		if r.err != nil {
			return r.err
		}
		sub := readCursor{data: r.readBytes(n), limit: r.limit}
		if err := decode(ctx, &sub, welem, relem, fv); err != nil {
			return err
		}
		if sub.pos != len(sub.data) {
			return errors.Wrapf(ErrCorruptBuffer, "%d trailing bytes in nested %s value", len(sub.data)-sub.pos, welem.Name)
		}
	default:
		return errors.Wrapf(ErrCorruptBuffer, "undecodable kind %s", k)
	}
	return r.err
}

// skipField advances past one field using only its encoded length, keeping
// forward-compatible reads working when the writer's shape has extra
// trailing fields.
func skipField(r *readCursor, f *FieldDescriptor) {
	if f.Nullable {
		if r.readByte() == 0 || r.err != nil {
			return
		}
	}
	skipKind(r, f.Kind, f.ElemKind)
}

func skipKind(r *readCursor, k, elemKind Kind) {
	if w := k.fixedWidth(); w > 0 {
		r.skip(w)
		return
	}
	switch k {
	case KindString, KindBytes, KindStruct:
		r.skip(r.readLen())
	case KindSlice:
		n := r.readLen()
		for i := 0; i < n && r.err == nil; i++ {
			skipKind(r, elemKind, KindInvalid)
		}
	}
}
