package fixture

import (
	"fmt"
	"github.com/DarthPestilane/easyduplex"
	"github.com/sirupsen/logrus"
	"runtime/debug"
)

// RecoverMiddleware turns a panicking handler into a handler error,
// so that the session keeps running.
func RecoverMiddleware(log logrus.FieldLogger) easyduplex.MiddlewareFunc {
	return func(next easyduplex.HandlerFunc) easyduplex.HandlerFunc {
		return func(c *easyduplex.Context) (resp *easyduplex.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("sid", c.Client().ID()).Errorf("PANIC | %+v | %s", r, debug.Stack())
					err = fmt.Errorf("handler panicked: %v", r)
				}
			}()
			return next(c)
		}
	}
}

// LogMiddleware logs every request, and the response if any.
func LogMiddleware(log logrus.FieldLogger) easyduplex.MiddlewareFunc {
	return func(next easyduplex.HandlerFunc) easyduplex.HandlerFunc {
		return func(c *easyduplex.Context) (*easyduplex.Message, error) {
			req := c.Request()
			log.Infof("rec <<< | id:(%v) size:(%d) data: %s", req.ID(), len(req.Data()), req.Data())
			resp, err := next(c)
			if resp != nil {
				log.Infof("snd >>> | id:(%v) size:(%d) data: %s", resp.ID(), len(resp.Data()), resp.Data())
			}
			return resp, err
		}
	}
}
