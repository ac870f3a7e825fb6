package contract

import (
	"encoding/json"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"gamebankcore/core/types"
)

// Runtime compiles and instantiates a contract's deposited WASM bytecode,
// binding the Host surface under module name "env" (section 4.6, section
// 9's "a WASM runtime is the natural modern replacement").
type Runtime struct {
	engine *wasmer.Engine
}

func NewRuntime() *Runtime {
	return &Runtime{engine: wasmer.NewEngine()}
}

// Validate compiles bytecode without running it, the check contract_deploy
// performs before a contract is accepted onto the chain.
func (r *Runtime) Validate(bytecode []byte) error {
	store := wasmer.NewStore(r.engine)
	_, err := wasmer.NewModule(store, bytecode)
	return err
}

// Init runs a freshly deployed contract's _init export, if present. Absence
// of _init is not an error (section 4.6 only calls it "if present").
func (r *Runtime) Init(bytecode []byte, host Host, limiter *StepLimiter) error {
	instance, hctx, err := r.instantiate(bytecode, host, limiter)
	if err != nil {
		return err
	}
	defer instance.Close()
	fn, err := instance.Exports.GetFunction("_init")
	if err != nil {
		return nil
	}
	_, err = fn()
	return hctx.firstErr(err)
}

// Call invokes a contract's named export, passing argsJSON through linear
// memory the same way the host functions exchange strings (section 4.6).
func (r *Runtime) Call(bytecode []byte, method, argsJSON string, host Host, limiter *StepLimiter) error {
	instance, hctx, err := r.instantiate(bytecode, host, limiter)
	if err != nil {
		return err
	}
	defer instance.Close()
	fn, err := instance.Exports.GetFunction(method)
	if err != nil {
		return fmt.Errorf("contract: export %q not found: %w", method, err)
	}
	ptr, length, err := hctx.writeString(argsJSON)
	if err != nil {
		return err
	}
	_, err = fn(ptr, length)
	return hctx.firstErr(err)
}

type hostCtx struct {
	host    Host
	limiter *StepLimiter
	mem     *wasmer.Memory
	alloc   func(size int32) (int32, error)
	err     error
}

func (h *hostCtx) firstErr(callErr error) error {
	if h.err != nil {
		return h.err
	}
	return callErr
}

func (h *hostCtx) readString(ptr, length int32) string {
	data := h.mem.Data()
	return string(data[ptr : ptr+length])
}

func (h *hostCtx) writeBytes(b []byte) (int32, int32, error) {
	ptr, err := h.alloc(int32(len(b)))
	if err != nil {
		return 0, 0, err
	}
	copy(h.mem.Data()[ptr:], b)
	return ptr, int32(len(b)), nil
}

func (h *hostCtx) writeString(s string) (int32, int32, error) {
	return h.writeBytes([]byte(s))
}

func (h *hostCtx) step() bool {
	if err := h.limiter.Step(); err != nil {
		h.err = err
		return false
	}
	return true
}

func (r *Runtime) instantiate(bytecode []byte, host Host, limiter *StepLimiter) (*wasmer.Instance, *hostCtx, error) {
	store := wasmer.NewStore(r.engine)
	mod, err := wasmer.NewModule(store, bytecode)
	if err != nil {
		return nil, nil, fmt.Errorf("contract: compile module: %w", err)
	}
	hctx := &hostCtx{host: host, limiter: limiter}
	imports := registerHost(store, hctx)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, nil, fmt.Errorf("contract: instantiate module: %w", err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, nil, fmt.Errorf("contract: wasm memory export missing: %w", err)
	}
	hctx.mem = mem
	allocFn, err := instance.Exports.GetFunction("alloc")
	if err == nil {
		hctx.alloc = func(size int32) (int32, error) {
			vals, err := allocFn(size)
			if err != nil {
				return 0, err
			}
			return vals.(int32), nil
		}
	} else {
		hctx.alloc = func(int32) (int32, error) {
			return 0, fmt.Errorf("contract: module does not export alloc")
		}
	}
	return instance, hctx, nil
}

func i32Type(params, results int) *wasmer.FunctionType {
	p := make([]wasmer.ValueKind, params)
	res := make([]wasmer.ValueKind, results)
	for i := range p {
		p[i] = wasmer.I32
	}
	for i := range res {
		res[i] = wasmer.I32
	}
	return wasmer.NewFunctionType(wasmer.NewValueTypes(p...), wasmer.NewValueTypes(res...))
}

func registerHost(store *wasmer.Store, h *hostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	headBlockNum := wasmer.NewFunction(store, i32Type(0, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		return []wasmer.Value{wasmer.NewI32(int32(h.host.HeadBlockNum()))}, nil
	})

	getBlockHash := wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		blockNum := uint64(args[0].I32())
		count := uint32(args[1].I32())
		interval := uint32(args[2].I32())
		outPtr := args[3].I32()
		digest, err := h.host.GetBlockHash(blockNum, count, interval)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		copy(h.mem.Data()[outPtr:], digest[:])
		return []wasmer.Value{wasmer.NewI32(int32(len(digest)))}, nil
	})

	getName := wasmer.NewFunction(store, i32Type(0, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		ptr, n, err := h.writeString(h.host.GetName())
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	getCaller := wasmer.NewFunction(store, i32Type(0, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		ptr, n, err := h.writeString(h.host.GetCaller())
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	getCreator := wasmer.NewFunction(store, i32Type(0, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		ptr, n, err := h.writeString(h.host.GetCreator())
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	getData := wasmer.NewFunction(store, i32Type(0, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		table, err := h.host.GetData()
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		encoded, err := json.Marshal(table)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		ptr, n, err := h.writeBytes(encoded)
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	getUserData := wasmer.NewFunction(store, i32Type(2, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		user := h.readString(args[0].I32(), args[1].I32())
		table, err := h.host.GetUserData(user)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		encoded, err := json.Marshal(table)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		ptr, n, err := h.writeBytes(encoded)
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	transfer := wasmer.NewFunction(store, i32Type(6, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		from := h.readString(args[0].I32(), args[1].I32())
		to := h.readString(args[2].I32(), args[3].I32())
		amountStr := h.readString(args[4].I32(), args[5].I32())
		var amount types.Asset
		if err := json.Unmarshal([]byte(amountStr), &amount); err != nil {
			h.err = fmt.Errorf("contract: transfer: decode amount: %w", err)
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := h.host.Transfer(from, to, amount); err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	emit := wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		key := h.readString(args[0].I32(), args[1].I32())
		tableJSON := h.readString(args[2].I32(), args[3].I32())
		table, err := h.host.JSONStrToTable(tableJSON)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := h.host.Emit(key, table); err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	jsonstrToTable := wasmer.NewFunction(store, i32Type(2, 2), func(args []wasmer.Value) ([]wasmer.Value, error) {
		if !h.step() {
			return nil, h.err
		}
		s := h.readString(args[0].I32(), args[1].I32())
		table, err := h.host.JSONStrToTable(s)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		encoded, err := json.Marshal(table)
		if err != nil {
			h.err = err
			return []wasmer.Value{wasmer.NewI32(-1), wasmer.NewI32(0)}, nil
		}
		ptr, n, err := h.writeBytes(encoded)
		if err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(ptr), wasmer.NewI32(n)}, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"head_block_num":      headBlockNum,
		"get_block_hash":      getBlockHash,
		"contract_get_name":   getName,
		"contract_get_caller": getCaller,
		"contract_get_creator": getCreator,
		"contract_get_data":   getData,
		"contract_get_user_data": getUserData,
		"contract_transfer":   transfer,
		"contract_emit":       emit,
		"contract_jsonstr_to_table": jsonstrToTable,
	})
	return imports
}
