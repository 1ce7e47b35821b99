package shim

import (
	"syscall"
	"time"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// Observer is notified after every handler returns.
type Observer interface {
	Observe(op string, d time.Duration, errno syscall.Errno, bytes int)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(op string, d time.Duration, errno syscall.Errno, bytes int)

func (f ObserverFunc) Observe(op string, d time.Duration, errno syscall.Errno, bytes int) {
	f(op, d, errno, bytes)
}

type multiObserver []Observer

func (m multiObserver) Observe(op string, d time.Duration, errno syscall.Errno, bytes int) {
	for _, o := range m {
		o.Observe(op, d, errno, bytes)
	}
}

// Observers combines observers into one, skipping nil entries.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	default:
		return m
	}
}

// LogObserver logs every call at debug level.
func LogObserver() Observer {
	return ObserverFunc(func(op string, d time.Duration, errno syscall.Errno, bytes int) {
		fields := []logging.Field{
			logging.String("op", op),
			logging.Duration("took", d),
		}
		if errno != 0 {
			fields = append(fields, logging.Errno(errno))
		}
		if bytes > 0 {
			fields = append(fields, logging.Int("bytes", bytes))
		}
		logging.Debug("fuse call", fields...)
	})
}
