package cache

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"go.uber.org/zap"
)

// Serve answers protocol requests against kv for every connection accepted on
// l. It returns nil once l is closed.
func Serve(l net.Listener, kv KV, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("accept failed", zap.Error(err))
			continue
		}
		go handleConn(conn, kv, log)
	}
}

func handleConn(conn net.Conn, kv KV, log *zap.Logger) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(dispatch(kv, req)); err != nil {
			log.Debug("write response failed", zap.String("op", req.Op), zap.Error(err))
			return
		}
	}
}

func dispatch(kv KV, req Request) Response {
	switch req.Op {
	case OpGet:
		v, err := kv.Get(req.Key)
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Found: true, Value: v}
	case OpPut:
		return result(kv.Put(req.Key, req.Value, time.Duration(req.TTL)))
	case OpDelete:
		return result(kv.Delete(req.Key))
	case OpContains:
		return found(kv.Contains(req.Key))
	case OpProtect:
		return found(kv.Protect(req.Keys))
	case OpRelease:
		return found(kv.Release(req.Keys))
	case OpRemovePrefix:
		return result(kv.RemoveKeysWithPrefix(req.Key))
	case OpClear:
		return result(kv.Clear())
	case OpStats:
		s, err := kv.Stats()
		if err != nil {
			return failure(err)
		}
		return Response{OK: true, Stats: &s}
	default:
		return failure(platformerrors.Newf(platformerrors.CodeInvalidInput, "cache: unknown op %q", req.Op))
	}
}

func result(err error) Response {
	if err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

func found(ok bool, err error) Response {
	if err != nil {
		return failure(err)
	}
	return Response{OK: true, Found: ok}
}

func failure(err error) Response {
	msg := err.Error()
	var perr platformerrors.PlatformError
	if errors.As(err, &perr) {
		msg = perr.Message()
	}
	return Response{OK: false, Code: string(platformerrors.GetCode(err)), Error: msg}
}
