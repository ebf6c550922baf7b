package fuseproto

import (
	"fmt"
	"os"
)

// maxRequestSize bounds the buffer Conn.ReadRequest reuses across calls.
// It must comfortably fit a MaxWrite-sized WRITE request plus its header.
const maxRequestSize = inHeaderSize + 4096 + int(MaxWrite)

// Conn is a session's raw channel to the kernel: an already-open /dev/fuse
// descriptor, handed to this process over SCM_RIGHTS by the coordinator
// rather than opened directly (see internal/ipc and internal/mounthelper).
// Its Read/Write pairing follows the same one-request-per-read,
// one-reply-per-write shape as libfuse's own channel implementation.
type Conn struct {
	f   *os.File
	buf []byte
}

func NewConn(f *os.File) *Conn {
	return &Conn{f: f, buf: make([]byte, maxRequestSize)}
}

func (c *Conn) File() *os.File {
	return c.f
}

func (c *Conn) Close() error {
	return c.f.Close()
}

// Request is one decoded kernel request: the fixed header plus whatever
// argument bytes follow it, still opaque until dispatched by opcode.
type Request struct {
	Header InHeader
	Body   []byte
}

// ReadRequest blocks for the next request from the kernel. It returns
// (Request{}, ENODEV-wrapping error) once the mount is torn down and the
// kernel closes the channel out from under a pending read.
func (c *Conn) ReadRequest() (Request, error) {
	n, err := c.f.Read(c.buf)
	if err != nil {
		return Request{}, err
	}
	if n < inHeaderSize {
		return Request{}, errShortBuffer("fuse_in_header", inHeaderSize, n)
	}
	hdr, err := decodeInHeader(c.buf[:n])
	if err != nil {
		return Request{}, err
	}
	body := make([]byte, n-inHeaderSize)
	copy(body, c.buf[inHeaderSize:n])
	return Request{Header: hdr, Body: body}, nil
}

// WriteReply sends a successful reply, prefixing payload with the
// fuse_out_header. A nil or empty payload is a valid zero-length success
// reply (used by e.g. FLUSH, FSYNC, SETXATTR).
func (c *Conn) WriteReply(unique uint64, payload []byte) error {
	out := make([]byte, outHeaderSize+len(payload))
	encodeOutHeader(out, uint32(len(out)), 0, unique)
	copy(out[outHeaderSize:], payload)
	_, err := c.f.Write(out)
	return err
}

// WriteError sends a negative-errno reply. errno must be a positive errno
// value (e.g. syscall.ENOENT); FUSE wants it negated on the wire.
func (c *Conn) WriteError(unique uint64, errno int) error {
	if errno == 0 {
		return fmt.Errorf("fuseproto: WriteError called with errno 0, use WriteReply")
	}
	out := make([]byte, outHeaderSize)
	encodeOutHeader(out, outHeaderSize, -int32(errno), unique)
	_, err := c.f.Write(out)
	return err
}
