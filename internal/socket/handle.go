package socket

import (
	"golang.org/x/sys/unix"
)

// Handle is an OS socket descriptor.
type Handle int

const InvalidHandle Handle = -1

func newHandle(domain, typ int) (Handle, error) {
	fd, err := unix.Socket(domain, typ, 0)
	if err != nil {
		return InvalidHandle, err
	}
	unix.CloseOnExec(fd)
	return Handle(fd), nil
}

func (h Handle) Close() error {
	return unix.Close(int(h))
}

func (h Handle) setNonblock(on bool) error {
	return unix.SetNonblock(int(h), on)
}

func (h Handle) boolOption(level, opt int) (bool, error) {
	v, err := unix.GetsockoptInt(int(h), level, opt)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (h Handle) setBoolOption(level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(int(h), level, opt, v)
}

// connect completes a connect(2) that was interrupted or is in progress by
// waiting for writability and reading SO_ERROR.
func (h Handle) connect(sa unix.Sockaddr) error {
	err := unix.Connect(int(h), sa)
	switch err {
	case nil, unix.EISCONN:
		return nil
	case unix.EINTR, unix.EINPROGRESS, unix.EALREADY:
	default:
		return err
	}

	if err := WaitWritable(int(h)); err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(int(h), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}
