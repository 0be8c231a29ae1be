package daemon

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
)

// Logger is the logrus logger handler
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency, // time to process
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
		})

		if len(c.Errors) > 0 {
			msg := c.Errors.ByType(gin.ErrorTypePrivate).String()
			if statusCode >= http.StatusInternalServerError {
				entry.Error(msg)
			} else {
				entry.Warn(msg)
			}
		} else {
			msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
			//nolint:gocritic
			if statusCode >= http.StatusInternalServerError {
				entry.Error(msg)
			} else if statusCode >= http.StatusBadRequest {
				entry.Warn(msg)
			} else {
				entry.Debug(msg)
			}
		}
	}
}

// statusFor maps an error to the HTTP status the API reports it with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, calibration.ErrCalibrationFrozen),
		errors.Is(err, ErrNotCalibrated),
		errors.Is(err, ErrInSetup),
		errors.Is(err, ErrTestComplete):
		return http.StatusConflict
	case errors.Is(err, calibration.ErrInvalidCalibration),
		errors.Is(err, acuity.ErrInvalidLevel),
		errors.Is(err, acuity.ErrInvalidLadder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as the JSON response body and stops the handler chain.
func abort(c *gin.Context, status int, err error) {
	c.IndentedJSON(status, err.Error())
	_ = c.AbortWithError(status, err)
}

func abortErr(c *gin.Context, err error) {
	abort(c, statusFor(err), err)
}
