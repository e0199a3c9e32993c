package badgerdb

import (
	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
)

// NewLogger returns a badger.Logger that forwards to logrus. Badger is chatty
// at info level, so its info and debug messages are both logged as debug.
func NewLogger() badger.Logger {
	return logger{}
}

type logger struct{}

func (logger) Errorf(format string, args ...interface{}) {
	log.Errorf("badger: "+format, args...)
}

func (logger) Warningf(format string, args ...interface{}) {
	log.Warnf("badger: "+format, args...)
}

func (logger) Infof(format string, args ...interface{}) {
	log.Debugf("badger: "+format, args...)
}

func (logger) Debugf(format string, args ...interface{}) {
	log.Tracef("badger: "+format, args...)
}
