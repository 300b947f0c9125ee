package loader

import (
	"context"
	"testing"

	"github.com/ProtonOS/ProtonOS-sub008/hal"
	"github.com/ProtonOS/ProtonOS-sub008/jit"
	"github.com/ProtonOS/ProtonOS-sub008/typesys"
)

// encodeBody builds the wire format DecodeBody expects: a region table
// (here empty) followed by an instruction stream of two instructions that
// need no type token (OpLoadLocal, OpRet), each a one-byte op plus three
// ULEB128 operands.
func encodeBody() []byte {
	var b []byte
	b = append(b, 0x00) // numRegions = 0

	b = append(b, 0x02) // numInstrs = 2

	b = append(b, byte(jit.OpLoadLocal), 0x01, 0x00, 0x00) // A=1, B=0, C=0
	b = append(b, byte(jit.OpRet), 0x00, 0x00, 0x00)
	return b
}

func widgetModuleWithBody() *hal.ParsedModule {
	return &hal.ParsedModule{
		Name: "App",
		TypeDefs: []hal.TypeDefRow{
			{Name: "Object", BaseTypeRef: -1},
			{Name: "Widget", BaseTypeRef: 0},
		},
		MethodDefs: []hal.MethodDefRow{
			{Name: "Compute", BodyRVA: 0x100},
		},
	}
}

func TestDecodeBody_DecodesInstructionStreamAndEmptyRegionTable(t *testing.T) {
	reader := &queueReader{items: []queuedModule{{parsed: widgetModuleWithBody()}}}
	l := New(reader)
	h, err := l.LoadModule(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}

	md, err := h.Method(0)
	if err != nil {
		t.Fatalf("Method(0): %v", err)
	}
	md.Bytecode = encodeBody()
	md.LocalsSig = []*typesys.TD{{Kind: typesys.KindPrimitive}}

	instrs, specs, metas, isRefLocal, err := l.DecodeBody(h, md)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(specs) != 0 || len(metas) != 0 {
		t.Fatalf("regions = %d specs / %d metas, want 0/0", len(specs), len(metas))
	}
	if len(instrs) != 2 {
		t.Fatalf("instrs = %d, want 2", len(instrs))
	}
	if instrs[0].Op != jit.OpLoadLocal || instrs[0].A != 1 {
		t.Errorf("instrs[0] = %+v, want OpLoadLocal A=1", instrs[0])
	}
	if instrs[1].Op != jit.OpRet {
		t.Errorf("instrs[1] = %+v, want OpRet", instrs[1])
	}
	if len(isRefLocal) != 1 || isRefLocal[0] {
		t.Errorf("isRefLocal = %v, want [false] for a primitive local", isRefLocal)
	}
}

func TestDecodeBody_ResolvesCatchRegionToken(t *testing.T) {
	reader := &queueReader{items: []queuedModule{{parsed: widgetModuleWithBody()}}}
	l := New(reader)
	h, err := l.LoadModule(context.Background(), nil)
	if err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	md, err := h.Method(0)
	if err != nil {
		t.Fatalf("Method(0): %v", err)
	}

	var body []byte
	body = append(body, 0x01)             // numRegions = 1
	body = append(body, 0x00, 0x05, 0x0a, 0x00) // tryStart=0 tryEnd=5 handlerPC=10 filterPC=0
	body = append(body, byte(typesys.HandlerCatch))
	body = append(body, 0x00)       // pathLen 0 -> this module
	body = append(body, byte(TokenTypeRef))
	body = append(body, 0x01) // index 1 (Widget)
	body = append(body, 0x00) // numInstrs = 0
	md.Bytecode = body

	_, specs, metas, _, err := l.DecodeBody(h, md)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if len(specs) != 1 || specs[0].TryStartPC != 0 || specs[0].TryEndPC != 5 || specs[0].HandlerPC != 10 {
		t.Fatalf("specs = %+v, want one region [0,5) handler 10", specs)
	}
	if metas[0].Kind != typesys.HandlerCatch || metas[0].CatchTD == nil || metas[0].CatchTD.Name != "Widget" {
		t.Fatalf("metas[0] = %+v, want catch of Widget", metas[0])
	}
}
