// Package wasm runs a model implemented as a WASI command module. Every
// operation instantiates the module once with the operation name as its
// second argument, a CBOR request on stdin and a CBOR response expected on
// stdout.
package wasm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/fxamacker/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

const (
	opTrain    = "train"
	opEvaluate = "evaluate"
)

var (
	errEmptyResponse = errors.New("module wrote no response")
	errModuleExit    = errors.New("module exited with non-zero code")
)

var _ model.Trainable = (*Runner)(nil)

type request struct {
	Snapshot message.Snapshot  `cbor:"snapshot"`
	Params   model.TrainParams `cbor:"params"`
}

type response struct {
	Snapshot message.Snapshot `cbor:"snapshot,omitempty"`
	Score    float64          `cbor:"score,omitempty"`
	Error    string           `cbor:"error,omitempty"`
}

// Runner keeps the current parameters on the host and hands them to the
// module on every call.
type Runner struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	logger   *slog.Logger

	mu       sync.Mutex
	snapshot message.Snapshot
}

func New(ctx context.Context, wasmBinary []byte, initial message.Snapshot, logger *slog.Logger) (*Runner, error) {
	r := wazero.NewRuntime(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBinary)
	if err != nil {
		r.Close(ctx)

		return nil, errors.Join(errors.New("failed to compile Wasm module"), err)
	}

	return &Runner{
		runtime:  r,
		compiled: compiled,
		logger:   logger,
		snapshot: initial.Clone(),
	}, nil
}

func (w *Runner) Snapshot() message.Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.snapshot.Clone()
}

func (w *Runner) Load(snapshot message.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.snapshot = snapshot.Clone()

	return nil
}

func (w *Runner) Train(ctx context.Context, params model.TrainParams) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.call(ctx, opTrain, request{Snapshot: w.snapshot, Params: params})
	if err != nil {
		return err
	}
	if resp.Snapshot == nil {
		return fmt.Errorf("%w: train returned no snapshot", errEmptyResponse)
	}
	w.snapshot = resp.Snapshot

	return nil
}

func (w *Runner) Evaluate(ctx context.Context) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	resp, err := w.call(ctx, opEvaluate, request{Snapshot: w.snapshot})
	if err != nil {
		return 0, err
	}

	return resp.Score, nil
}

func (w *Runner) call(ctx context.Context, op string, req request) (response, error) {
	in, err := cbor.Marshal(req)
	if err != nil {
		return response{}, err
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs("model", op).
		WithStdin(bytes.NewReader(in)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if stderr.Len() > 0 {
		w.logger.Debug("model stderr", slog.String("op", op), slog.String("output", stderr.String()))
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return response{}, errors.Join(errModuleExit, err)
		}
	}

	if stdout.Len() == 0 {
		return response{}, fmt.Errorf("%w: %s", errEmptyResponse, op)
	}

	var resp response
	if err := cbor.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return response{}, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("model %s failed: %s", op, resp.Error)
	}

	return resp, nil
}

func (w *Runner) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
