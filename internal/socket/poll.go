package socket

import "golang.org/x/sys/unix"

// WaitReadable blocks until fd is readable, hung up or in error.
func WaitReadable(fd int) error {
	return wait(fd, unix.POLLIN)
}

// WaitWritable blocks until fd is writable, hung up or in error.
func WaitWritable(fd int) error {
	return wait(fd, unix.POLLOUT)
}

func wait(fd int, events int16) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
