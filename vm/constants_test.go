package vm

import (
	stderrors "errors"
	"testing"

	"github.com/clear-lang/clearvm/bytecode"
	"github.com/clear-lang/clearvm/errors"
)

func TestLoadConstants(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Int(-12)
	b.Num(2.5)
	b.Str("hello")
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	m := New()
	defer m.Close()

	offset, err := m.loadConstants(blob)
	if err != nil {
		t.Fatalf("loadConstants: %v", err)
	}
	if offset != len(blob) {
		t.Errorf("code offset = %d, want %d", offset, len(blob))
	}
	if len(m.constants) != 3 {
		t.Fatalf("constant count = %d, want 3", len(m.constants))
	}

	if v := m.constants[0]; v.Tag() != TagInt || v.AsInt() != -12 {
		t.Errorf("constants[0] = %s, want <int -12>", v)
	}
	if v := m.constants[1]; v.Tag() != TagNum || v.AsNum() != 2.5 {
		t.Errorf("constants[1] = %s, want <num 2.5>", v)
	}
	v := m.constants[2]
	if !v.isObj(ObjString) || string(v.obj.bytes) != "hello" {
		t.Errorf("constants[2] = %s, want <str %q>", v, "hello")
	}
}

func TestLoadConstantsStringIsHeapLinked(t *testing.T) {
	b := bytecode.NewBuilder()
	b.Str("x")
	blob, err := b.Bytes()
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	m := New()
	defer m.Close()
	if _, err := m.loadConstants(blob); err != nil {
		t.Fatalf("loadConstants: %v", err)
	}
	if m.heap.count != 1 {
		t.Errorf("heap count = %d, want the constant string linked", m.heap.count)
	}
}

func TestLoadConstantsFailures(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		kind errors.Kind
	}{
		{"empty blob", []byte{}, errors.KindTruncated},
		{"missing record", []byte{1}, errors.KindTruncated},
		{"truncated int", []byte{1, bytecode.ConstInt, 1, 2}, errors.KindTruncated},
		{"truncated num", []byte{1, bytecode.ConstNum, 1, 2, 3, 4}, errors.KindTruncated},
		{"missing string length", []byte{1, bytecode.ConstStr}, errors.KindTruncated},
		{"truncated string body", []byte{1, bytecode.ConstStr, 4, 'a', 'b'}, errors.KindTruncated},
		{"unknown tag", []byte{1, 0x42}, errors.KindUnknownConstant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(WithStderr(discard{}))
			defer m.Close()

			_, err := m.loadConstants(tt.blob)
			if err == nil {
				t.Fatal("expected a load failure")
			}
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: tt.kind}) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
