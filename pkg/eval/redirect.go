package eval

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"mvdan.cc/sh/v3/syntax"

	"github.com/npc-cli/jsh/pkg/device"
	"github.com/npc-cli/jsh/pkg/eval/errs"
	"github.com/npc-cli/jsh/pkg/session"
)

// Applies redirects to meta, which must be a clone owned by the command. The
// returned function removes the devices created for the redirects; it is
// never nil.
func (fr *Frame) redirect(redirs []*syntax.Redirect, meta *session.Meta) (func(), error) {
	var created []string
	undo := func() {
		for _, key := range created {
			fr.sess.Devices.Remove(key)
		}
	}
	for _, r := range redirs {
		fd := 1
		if r.Op == syntax.RdrIn || r.Op == syntax.DplIn {
			fd = 0
		}
		if r.N != nil {
			n, err := strconv.Atoi(r.N.Value)
			if err != nil {
				return undo, errs.Newf(2, "bad file descriptor: %s", r.N.Value)
			}
			fd = n
		}
		target, err := fr.literal(r.Word, meta)
		if err != nil {
			return undo, err
		}

		switch r.Op {
		case syntax.RdrOut, syntax.ClbOut, syntax.AppOut, syntax.RdrAll, syntax.AppAll:
			key := target
			if _, ok := fr.sess.Devices.Get(target); !ok {
				mode := device.VarLast
				if r.Op == syntax.AppOut || r.Op == syntax.AppAll {
					mode = device.VarArray
				}
				var isNew bool
				key, isNew = fr.varDevice(meta, target, mode)
				if isNew {
					created = append(created, key)
				}
			}
			if r.Op == syntax.RdrAll || r.Op == syntax.AppAll {
				meta.FD[1], meta.FD[2] = key, key
			} else {
				meta.FD[fd] = key
			}
		case syntax.RdrIn:
			if _, ok := fr.sess.Devices.Get(target); ok {
				meta.FD[fd] = target
				continue
			}
			key, err := fr.replay(meta, target)
			if err != nil {
				return undo, err
			}
			created = append(created, key)
			meta.FD[fd] = key
		case syntax.DplOut, syntax.DplIn:
			src, err := strconv.Atoi(target)
			if err != nil {
				return undo, errs.Newf(2, "unsupported redirect target: %s", target)
			}
			key, ok := meta.FD[src]
			if !ok {
				return undo, errs.Newf(1, "bad file descriptor: %d", src)
			}
			meta.FD[fd] = key
		default:
			return undo, errs.New("unsupported redirect", 2)
		}
	}
	return undo, nil
}

// Returns the key of a Var device writing to path on behalf of meta's
// process, creating it if needed. isNew reports whether it was created.
func (fr *Frame) varDevice(meta *session.Meta, path string, mode device.VarMode) (key string, isNew bool) {
	key = device.VarKey(path, meta.SessionKey, meta.Pid)
	if _, ok := fr.sess.Devices.Get(key); ok {
		return key, false
	}
	sess, m := fr.sess, meta.Clone()
	d := device.NewVar(key, mode, device.VarAccess{
		Get: func() any { return sess.Get(m, path) },
		Set: func(v any) error { return sess.SetVarDeep(m, path, v) },
	})
	if err := fr.sess.Devices.Add(d); err != nil {
		return key, false
	}
	return key, true
}

// Replays the value at path through a closed fifo, so that it can be read
// from. Arrays are replayed item by item.
func (fr *Frame) replay(meta *session.Meta, path string) (string, error) {
	v := fr.sess.Get(meta, path)
	if v == nil {
		return "", errs.Newf(1, "%s: not found", path)
	}
	items := []any{v}
	if arr, ok := v.([]any); ok {
		items = arr
	}
	f := device.NewFifo("/dev/fifo-"+uuid.NewString(), max(len(items)+1, fr.sess.Config().PipeBuffer))
	for _, item := range items {
		f.Write(context.Background(), item)
	}
	f.CloseWrite()
	if err := fr.sess.Devices.Add(f); err != nil {
		return "", err
	}
	return f.Key(), nil
}
