package grootfs

import (
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/groot-project/groot/internal/fuseproto"
	"github.com/groot-project/groot/pkg/grootlog"
	"golang.org/x/sys/unix"
)

// Session pumps requests from one mounted /dev/fuse connection through an
// FS, sending back exactly one reply per request the way the kernel
// protocol requires.
type Session struct {
	conn *fuseproto.Conn
	fs   *FS
}

func NewSession(conn *fuseproto.Conn, fs *FS) *Session {
	return &Session{conn: conn, fs: fs}
}

// Serve runs until the kernel tears down the channel (unmount) or SIGHUP,
// SIGINT or SIGTERM closes the connection. SIGPIPE is ignored for the session's lifetime since a
// write racing an unmount would otherwise kill the process outright.
func (s *Session) Serve() error {
	signal.Ignore(syscall.SIGPIPE)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		grootlog.Infof("received %s, closing fuse connection", sig)
		s.conn.Close()
	}()

	for {
		req, err := s.conn.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, unix.ENODEV) {
				return nil
			}
			return err
		}
		s.dispatch(req)
	}
}

func errnoOf(err error) int {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return int(unix.EIO)
}

func (s *Session) reply(req fuseproto.Request, payload []byte, err error) {
	if err != nil {
		if werr := s.conn.WriteError(req.Header.Unique, errnoOf(err)); werr != nil {
			grootlog.Errorf("write error reply: %v", werr)
		}
		return
	}
	if werr := s.conn.WriteReply(req.Header.Unique, payload); werr != nil {
		grootlog.Errorf("write reply: %v", werr)
	}
}

func (s *Session) dispatch(req fuseproto.Request) {
	h := req.Header

	switch h.Opcode {
	case fuseproto.OpInit:
		in, err := fuseproto.DecodeInitIn(req.Body)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
		minor := fuseproto.NegotiateMinor(in.Minor)
		s.reply(req, fuseproto.EncodeInitOut(minor), nil)

	case fuseproto.OpDestroy:
		s.reply(req, nil, nil)

	case fuseproto.OpLookup:
		name := fuseproto.CString(req.Body)
		path, ok := s.fs.Nodes.Path(h.NodeID)
		if !ok {
			s.reply(req, nil, unix.ENOENT)
			return
		}
		attr, err := s.fs.Getattr(joinPath(path, name))
		if err != nil {
			s.reply(req, nil, err)
			return
		}
		id := s.fs.Nodes.Lookup(h.NodeID, name)
		s.reply(req, fuseproto.EncodeEntryOut(id, attr), nil)

	case fuseproto.OpForget:
		// FORGET carries no reply.
		if len(req.Body) >= 8 {
			nlookup := byteOrderUint64(req.Body)
			s.fs.Nodes.Forget(h.NodeID, nlookup)
		}

	case fuseproto.OpGetattr:
		path, ok := s.fs.Nodes.Path(h.NodeID)
		if !ok {
			s.reply(req, nil, unix.ENOENT)
			return
		}
		attr, err := s.fs.Getattr(path)
		payload, err := encodeIfOK(fuseproto.EncodeAttrOut, attr, err)
		s.reply(req, payload, err)

	case fuseproto.OpSetattr:
		s.handleSetattr(req)

	case fuseproto.OpReadlink:
		path, ok := s.fs.Nodes.Path(h.NodeID)
		if !ok {
			s.reply(req, nil, unix.ENOENT)
			return
		}
		target, err := s.fs.Readlink(path)
		s.reply(req, []byte(target), err)

	case fuseproto.OpSymlink:
		s.handleSymlink(req)

	case fuseproto.OpMknod:
		s.reply(req, nil, unix.EROFS)

	case fuseproto.OpMkdir:
		s.handleMkdir(req)

	case fuseproto.OpUnlink:
		s.handleRemove(req, false)

	case fuseproto.OpRmdir:
		s.handleRemove(req, true)

	case fuseproto.OpRename:
		s.handleRename(req)

	case fuseproto.OpLink:
		s.handleLink(req)

	case fuseproto.OpOpen, fuseproto.OpOpendir:
		s.handleOpen(req)

	case fuseproto.OpCreate:
		s.handleCreate(req)

	case fuseproto.OpRead:
		s.handleRead(req)

	case fuseproto.OpWrite:
		s.handleWrite(req)

	case fuseproto.OpRelease, fuseproto.OpReleasedir:
		in, err := fuseproto.DecodeReleaseIn(req.Body)
		if err == nil {
			s.fs.Release(in.FH)
		}
		s.reply(req, nil, nil)

	case fuseproto.OpFsync, fuseproto.OpFsyncdir:
		fh, err := fuseproto.DecodeFsyncIn(req.Body)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
		s.reply(req, nil, s.fs.Fsync(fh))

	case fuseproto.OpFlush:
		s.reply(req, nil, nil)

	case fuseproto.OpStatfs:
		st, err := s.fs.Statfs()
		payload, err := encodeIfOK(fuseproto.EncodeStatfsOut, st, err)
		s.reply(req, payload, err)

	case fuseproto.OpAccess:
		mask, err := fuseproto.DecodeAccessIn(req.Body)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
		path, ok := s.fs.Nodes.Path(h.NodeID)
		if !ok {
			s.reply(req, nil, unix.ENOENT)
			return
		}
		s.reply(req, nil, s.fs.Access(path, mask))

	case fuseproto.OpReaddir:
		s.handleReaddir(req)

	case fuseproto.OpSetxattr:
		s.handleSetxattr(req)

	case fuseproto.OpGetxattr:
		s.handleGetxattr(req)

	case fuseproto.OpListxattr:
		s.handleListxattr(req)

	case fuseproto.OpRemovexattr:
		name := fuseproto.CString(req.Body)
		path, ok := s.fs.Nodes.Path(h.NodeID)
		if !ok {
			s.reply(req, nil, unix.ENOENT)
			return
		}
		s.reply(req, nil, s.fs.Removexattr(path, name))

	case fuseproto.OpInterrupt, fuseproto.OpBatchForget:
		// No reply expected.

	default:
		s.reply(req, nil, unix.ENOSYS)
	}
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func byteOrderUint64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func encodeIfOK[T any](enc func(T) []byte, v T, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return enc(v), nil
}
