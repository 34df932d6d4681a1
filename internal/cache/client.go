package cache

import (
	"encoding/json"
	"net"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

// Client implements KV over a Unix socket.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) withConn(fn func(conn net.Conn) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeUnavailable, "cache: dial daemon")
	}
	defer conn.Close()
	return fn(conn)
}

// do sends req and decodes the response, turning a failed response into an error.
func (c *Client) do(req Request) (Response, error) {
	var resp Response
	err := c.withConn(func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return err
		}
		if err := json.NewDecoder(conn).Decode(&resp); err != nil {
			return err
		}
		if !resp.OK {
			return remoteError(resp)
		}
		return nil
	})
	return resp, err
}

func remoteError(resp Response) error {
	code := platformerrors.ErrorCode(resp.Code)
	switch code {
	case platformerrors.CodeNotFound:
		return ErrNotFound
	case "":
		code = platformerrors.CodeUnknown
	}
	if code == platformerrors.CodeConflict && resp.Error == ErrNotOpen.Message() {
		return ErrNotOpen
	}
	return platformerrors.New(code, resp.Error)
}

func (c *Client) Get(key string) ([]byte, error) {
	resp, err := c.do(Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), resp.Value...), nil
}

func (c *Client) Put(key string, value []byte, ttl time.Duration) error {
	_, err := c.do(Request{Op: OpPut, Key: key, Value: value, TTL: int64(ttl)})
	return err
}

func (c *Client) Delete(key string) error {
	_, err := c.do(Request{Op: OpDelete, Key: key})
	return err
}

func (c *Client) Contains(key string) (bool, error) {
	resp, err := c.do(Request{Op: OpContains, Key: key})
	return resp.Found, err
}

func (c *Client) Protect(keys []string) (bool, error) {
	resp, err := c.do(Request{Op: OpProtect, Keys: keys})
	return resp.Found, err
}

func (c *Client) Release(keys []string) (bool, error) {
	resp, err := c.do(Request{Op: OpRelease, Keys: keys})
	return resp.Found, err
}

func (c *Client) RemoveKeysWithPrefix(prefix string) error {
	_, err := c.do(Request{Op: OpRemovePrefix, Key: prefix})
	return err
}

func (c *Client) Clear() error {
	_, err := c.do(Request{Op: OpClear})
	return err
}

func (c *Client) Stats() (Snapshot, error) {
	resp, err := c.do(Request{Op: OpStats})
	if err != nil || resp.Stats == nil {
		return Snapshot{}, err
	}
	return *resp.Stats, nil
}

var (
	_ KV = (*Client)(nil)
	_ KV = local{}
)
