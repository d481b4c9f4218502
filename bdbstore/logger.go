package bdbstore

import "github.com/golang/glog"

// glogLogger adapts glog to badger.Logger. Badger's info and debug output
// is only logged with -v=2 and -v=3 respectively.
type glogLogger struct{}

func (glogLogger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepthf(1, format, args...)
}

func (glogLogger) Warningf(format string, args ...interface{}) {
	glog.WarningDepthf(1, format, args...)
}

func (glogLogger) Infof(format string, args ...interface{}) {
	glog.V(2).InfoDepthf(1, format, args...)
}

func (glogLogger) Debugf(format string, args ...interface{}) {
	glog.V(3).InfoDepthf(1, format, args...)
}
