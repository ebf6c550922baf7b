package grootfs

import (
	"time"

	"github.com/groot-project/groot/internal/fuseproto"
	"golang.org/x/sys/unix"
)

func (s *Session) handleSetattr(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeSetattrIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}

	var attr fuseproto.Attr

	if in.Valid&fuseproto.FattrMode != 0 {
		attr, err = s.fs.Chmod(path, in.Mode)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
	}
	if in.Valid&(fuseproto.FattrUID|fuseproto.FattrGID) != 0 {
		uid, gid := ^uint32(0), ^uint32(0)
		if in.Valid&fuseproto.FattrUID != 0 {
			uid = in.UID
		}
		if in.Valid&fuseproto.FattrGID != 0 {
			gid = in.GID
		}
		attr, err = s.fs.Chown(path, uid, gid)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
	}
	if in.Valid&fuseproto.FattrSize != 0 {
		if in.Valid&fuseproto.FattrFH != 0 {
			err = s.fs.Ftruncate(in.FH, int64(in.Size))
		} else {
			err = s.fs.Truncate(path, int64(in.Size))
		}
		if err != nil {
			s.reply(req, nil, err)
			return
		}
	}
	if in.Valid&(fuseproto.FattrAtime|fuseproto.FattrMtime) != 0 {
		atime, mtime := in.Atime, in.Mtime
		if in.Valid&fuseproto.FattrAtimeNow != 0 {
			atime = nowForSession()
		}
		if in.Valid&fuseproto.FattrMtimeNow != 0 {
			mtime = nowForSession()
		}
		if err := s.fs.Utimens(path, atime, mtime); err != nil {
			s.reply(req, nil, err)
			return
		}
	}

	attr, err = s.fs.Getattr(path)
	payload, err := encodeIfOK(fuseproto.EncodeAttrOut, attr, err)
	s.reply(req, payload, err)
}

// nowForSession is overridable so tests covering ATIME_NOW/MTIME_NOW don't
// depend on wall-clock time.
var nowForSession = func() time.Time { return time.Now() }

func (s *Session) handleSymlink(req fuseproto.Request) {
	h := req.Header
	target := fuseproto.CString(req.Body)
	rest := req.Body[len(target)+1:]
	name := fuseproto.CString(rest)

	parent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	attr, err := s.fs.Symlink(target, joinPath(parent, name), h.UID, h.GID)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	id := s.fs.Nodes.Lookup(h.NodeID, name)
	s.reply(req, fuseproto.EncodeEntryOut(id, attr), nil)
}

func (s *Session) handleMkdir(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeMkdirIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	parent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	attr, err := s.fs.Mkdir(joinPath(parent, in.Name), in.Mode, h.UID, h.GID)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	id := s.fs.Nodes.Lookup(h.NodeID, in.Name)
	s.reply(req, fuseproto.EncodeEntryOut(id, attr), nil)
}

func (s *Session) handleRemove(req fuseproto.Request, isDir bool) {
	h := req.Header
	name := fuseproto.CString(req.Body)
	parent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	full := joinPath(parent, name)
	var err error
	if isDir {
		err = s.fs.Rmdir(full)
	} else {
		err = s.fs.Unlink(full)
	}
	if err == nil {
		if id, ok := s.fs.Nodes.Child(h.NodeID, name); ok {
			s.fs.Nodes.Forget(id, ^uint64(0))
		}
	}
	s.reply(req, nil, err)
}

func (s *Session) handleRename(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeRenameIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	oldParent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	newParent, ok := s.fs.Nodes.Path(in.NewDir)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	from := joinPath(oldParent, in.OldName)
	to := joinPath(newParent, in.NewName)
	if err := s.fs.Rename(from, to); err != nil {
		s.reply(req, nil, err)
		return
	}
	if id, ok := s.fs.Nodes.Child(h.NodeID, in.OldName); ok {
		s.fs.Nodes.Rename(id, in.NewDir, in.NewName)
	}
	s.reply(req, nil, nil)
}

func (s *Session) handleLink(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeLinkIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	oldPath, ok := s.fs.Nodes.Path(in.OldNodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	newParent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	to := joinPath(newParent, in.NewName)
	if err := s.fs.Link(oldPath, to); err != nil {
		s.reply(req, nil, err)
		return
	}
	attr, err := s.fs.Getattr(to)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	id := s.fs.Nodes.Lookup(h.NodeID, in.NewName)
	s.reply(req, fuseproto.EncodeEntryOut(id, attr), nil)
}

func (s *Session) handleOpen(req fuseproto.Request) {
	h := req.Header
	flags, err := fuseproto.DecodeOpenIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	fh, err := s.fs.Open(path, flags)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	s.reply(req, fuseproto.EncodeOpenOut(fh, 0), nil)
}

func (s *Session) handleCreate(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeCreateIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	parent, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	fh, attr, err := s.fs.Create(joinPath(parent, in.Name), in.Flags, in.Mode, h.UID, h.GID)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	id := s.fs.Nodes.Lookup(h.NodeID, in.Name)
	payload := append(fuseproto.EncodeEntryOut(id, attr), fuseproto.EncodeOpenOut(fh, 0)...)
	s.reply(req, payload, nil)
}

func (s *Session) handleRead(req fuseproto.Request) {
	in, err := fuseproto.DecodeReadIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	data, err := s.fs.Read(in.FH, int64(in.Offset), int(in.Size))
	s.reply(req, data, err)
}

func (s *Session) handleWrite(req fuseproto.Request) {
	in, err := fuseproto.DecodeWriteIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	n, err := s.fs.Write(in.FH, int64(in.Offset), in.Data)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	s.reply(req, fuseproto.EncodeWriteOut(uint32(n)), nil)
}

func (s *Session) handleReaddir(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeReadIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	entries, err := s.fs.Readdir(path)
	if err != nil {
		s.reply(req, nil, err)
		return
	}

	list := fuseproto.NewDirEntryList(int(in.Size))
	for _, e := range entries {
		if e.NextOffset <= in.Offset {
			continue
		}
		if !list.Add(e) {
			break
		}
	}
	s.reply(req, list.Bytes(), nil)
}

func (s *Session) handleSetxattr(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeSetxattrIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	s.reply(req, nil, s.fs.Setxattr(path, in.Name, in.Value, in.Flags))
}

func (s *Session) handleGetxattr(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeGetxattrIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}

	if in.Size == 0 {
		value, err := s.fs.Getxattr(path, in.Name, 65536)
		if err != nil {
			s.reply(req, nil, err)
			return
		}
		s.reply(req, fuseproto.EncodeGetxattrOut(uint32(len(value))), nil)
		return
	}

	value, err := s.fs.Getxattr(path, in.Name, int(in.Size))
	s.reply(req, value, err)
}

func (s *Session) handleListxattr(req fuseproto.Request) {
	h := req.Header
	in, err := fuseproto.DecodeGetxattrIn(req.Body)
	if err != nil {
		s.reply(req, nil, err)
		return
	}
	path, ok := s.fs.Nodes.Path(h.NodeID)
	if !ok {
		s.reply(req, nil, unix.ENOENT)
		return
	}
	names, err := s.fs.Listxattr(path)
	if err != nil {
		s.reply(req, nil, err)
		return
	}

	var buf []byte
	for _, n := range names {
		buf = append(buf, n...)
		buf = append(buf, 0)
	}

	if in.Size == 0 {
		s.reply(req, fuseproto.EncodeGetxattrOut(uint32(len(buf))), nil)
		return
	}
	if uint32(len(buf)) > in.Size {
		s.reply(req, nil, unix.ERANGE)
		return
	}
	s.reply(req, buf, nil)
}
